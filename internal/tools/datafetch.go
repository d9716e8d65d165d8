package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegis-trader/aegis/internal/strategy"
)

// DataFetchArgs is the request shape for data.fetch.
type DataFetchArgs struct {
	Symbols   []string `json:"symbols"`
	RangeDays int      `json:"range_days"`
}

// DataFetchResult summarizes the bars available per symbol. Rows estimates
// minute bars over the requested range (390 per trading day).
type DataFetchResult struct {
	Symbols   []string       `json:"symbols"`
	RangeDays int            `json:"range_days"`
	Rows      int            `json:"rows"`
	Bars      map[string]int `json:"bars"`
}

// MinuteBarsPerDay is the number of one-minute bars in a US trading session.
const MinuteBarsPerDay = 390

// DataFetchTool reports data availability for a set of symbols.
type DataFetchTool struct {
	prices strategy.PriceProvider
}

// NewDataFetchTool creates the data.fetch tool.
func NewDataFetchTool(prices strategy.PriceProvider) *DataFetchTool {
	return &DataFetchTool{prices: prices}
}

func (t *DataFetchTool) Name() string { return "data.fetch" }

func (t *DataFetchTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var args DataFetchArgs
	if err := BindArgs(t.Name(), raw, &args); err != nil {
		return nil, err
	}

	if len(args.Symbols) == 0 {
		args.Symbols = []string{"AAPL", "MSFT"}
	}
	if args.RangeDays <= 0 {
		args.RangeDays = 5
	}

	bars := make(map[string]int, len(args.Symbols))
	for _, symbol := range args.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		series, err := t.prices.Prices(symbol)
		if err != nil {
			return nil, fmt.Errorf("data fetch for %s failed: %w", symbol, err)
		}
		bars[symbol] = len(series)
	}

	return &DataFetchResult{
		Symbols:   args.Symbols,
		RangeDays: args.RangeDays,
		Rows:      MinuteBarsPerDay * args.RangeDays,
		Bars:      bars,
	}, nil
}
