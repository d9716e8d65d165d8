package strategy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticProvider serves a fixed series for any symbol.
type staticProvider struct {
	series []float64
}

func (p *staticProvider) Prices(string) ([]float64, error) {
	return p.series, nil
}

func trendingSeries(n int) []float64 {
	prices := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1.001
		prices[i] = price
	}
	return prices
}

func TestEngine_RunSMACross_Validation(t *testing.T) {
	engine := NewEngine(&staticProvider{series: trendingSeries(300)}, zerolog.Nop())

	t.Run("fast must be shorter than slow", func(t *testing.T) {
		_, err := engine.RunSMACross("ACME", 50, 20)
		assert.Error(t, err)

		_, err = engine.RunSMACross("ACME", 20, 20)
		assert.Error(t, err)
	})

	t.Run("windows must be positive", func(t *testing.T) {
		_, err := engine.RunSMACross("ACME", 0, 50)
		assert.Error(t, err)
	})

	t.Run("series must exceed the slow window", func(t *testing.T) {
		short := NewEngine(&staticProvider{series: trendingSeries(40)}, zerolog.Nop())
		_, err := short.RunSMACross("ACME", 10, 50)
		assert.Error(t, err)
	})
}

func TestBacktestSMACross_TrendingMarket(t *testing.T) {
	// Steady uptrend: the fast SMA stays above the slow SMA after warm-up, so
	// the strategy is long for most of the series and ends positive.
	metrics := BacktestSMACross(trendingSeries(400), 10, 50)

	assert.Greater(t, metrics.TotalReturn, 0.0)
	assert.GreaterOrEqual(t, metrics.MaxDrawdown, 0.0)
	assert.Equal(t, 400, metrics.Bars)
	assert.Equal(t, 1, metrics.Trades)
}

func TestBacktestSMACross_FlatMarket(t *testing.T) {
	flat := make([]float64, 300)
	for i := range flat {
		flat[i] = 100
	}

	metrics := BacktestSMACross(flat, 10, 50)

	assert.Zero(t, metrics.TotalReturn)
	assert.Zero(t, metrics.Sharpe)
	assert.Zero(t, metrics.MaxDrawdown)
	assert.Zero(t, metrics.Trades)
}

func TestBacktestSMACross_Deterministic(t *testing.T) {
	series := SyntheticSeries("ACME", 500)

	a := BacktestSMACross(series, 10, 50)
	b := BacktestSMACross(series, 10, 50)

	assert.Equal(t, a, b)
}

func TestSyntheticSeries(t *testing.T) {
	t.Run("same symbol yields same series", func(t *testing.T) {
		assert.Equal(t, SyntheticSeries("ACME", 100), SyntheticSeries("ACME", 100))
		assert.Equal(t, SyntheticSeries("acme", 100), SyntheticSeries("ACME", 100))
	})

	t.Run("different symbols diverge", func(t *testing.T) {
		assert.NotEqual(t, SyntheticSeries("ACME", 100), SyntheticSeries("GLOBEX", 100))
	})
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	log := zerolog.Nop()

	t.Run("reads close column from CSV", func(t *testing.T) {
		csv := "Date,Open,Close\n2026-01-02,99,100.5\n2026-01-03,100,101.25\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ACME.csv"), []byte(csv), 0644))

		p := NewFileProvider(dir, log)
		prices, err := p.Prices("acme")
		require.NoError(t, err)
		assert.Equal(t, []float64{100.5, 101.25}, prices)
	})

	t.Run("falls back to synthetic series", func(t *testing.T) {
		p := NewFileProvider(dir, log)
		prices, err := p.Prices("GLOBEX")
		require.NoError(t, err)
		assert.Len(t, prices, DefaultSeriesLength)
		assert.Equal(t, SyntheticSeries("GLOBEX", DefaultSeriesLength), prices)
	})

	t.Run("skips malformed rows", func(t *testing.T) {
		csv := "Date,Close\n2026-01-02,100.5\n2026-01-03,not-a-number\n2026-01-04,102\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "INITECH.csv"), []byte(csv), 0644))

		p := NewFileProvider(dir, log)
		prices, err := p.Prices("INITECH")
		require.NoError(t, err)
		assert.Equal(t, []float64{100.5, 102}, prices)
	})
}

func TestSweepRunner_Run(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(&staticProvider{series: SyntheticSeries("ACME", 500)}, zerolog.Nop())
	runner := NewSweepRunner(engine, dir, zerolog.Nop())

	written, err := runner.Run("ACME", []int{10, 20, 30}, []int{20, 50})
	require.NoError(t, err)

	// fast >= slow pairs (20/20, 30/20) are skipped
	assert.Equal(t, 4, written)

	data, err := os.ReadFile(filepath.Join(dir, "sma_cross_fast10_slow50.json"))
	require.NoError(t, err)

	var result SweepResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, SMACrossName, result.Strategy)
	assert.Equal(t, "ACME", result.Symbol)
	assert.Equal(t, map[string]int{"fast": 10, "slow": 50}, result.Params)
	assert.NotEmpty(t, result.GeneratedAt)
}
