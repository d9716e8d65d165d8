package formulas

import (
	"github.com/markcheno/go-talib"
)

// SMA calculates a simple moving average over closing prices.
// The first length-1 entries of the returned slice are zero (talib warm-up).
//
// Args:
//   closes: Array of closing prices
//   length: SMA window (e.g. 50, 200)
func SMA(closes []float64, length int) []float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	return talib.Sma(closes, length)
}

// CrossoverSignal returns 1 where fast SMA is above slow SMA, else 0.
// Entries inside the slow warm-up window are 0 (no position).
func CrossoverSignal(closes []float64, fast, slow int) []int {
	fastSMA := SMA(closes, fast)
	slowSMA := SMA(closes, slow)
	if fastSMA == nil || slowSMA == nil {
		return nil
	}

	signal := make([]int, len(closes))
	for i := slow - 1; i < len(closes); i++ {
		if fastSMA[i] > slowSMA[i] {
			signal[i] = 1
		}
	}

	return signal
}
