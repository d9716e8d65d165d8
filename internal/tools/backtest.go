package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegis-trader/aegis/internal/strategy"
	"github.com/aegis-trader/aegis/pkg/formulas"
)

// BacktestArgs is the request shape for backtest.run.
type BacktestArgs struct {
	Strategy string          `json:"strategy"`
	Symbols  []string        `json:"symbols"`
	Params   *BacktestParams `json:"params"`
}

// BacktestParams are the SMA windows; nil falls back to the tool defaults.
type BacktestParams struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`
}

// BacktestResult is the metrics record returned by backtest.run. Sharpe and
// drawdown aggregate across symbols: mean Sharpe, worst drawdown.
type BacktestResult struct {
	Strategy    string                       `json:"strategy"`
	Symbols     []string                     `json:"symbols"`
	Sharpe      float64                      `json:"sharpe"`
	MaxDrawdown float64                      `json:"maxDD"`
	TotalReturn float64                      `json:"total_return"`
	VolAnnual   float64                      `json:"vol_annual"`
	Params      map[string]int               `json:"params"`
	PerSymbol   map[string]*strategy.Metrics `json:"per_symbol"`
}

// Default windows applied when the caller omits params.
const (
	DefaultFastWindow = 50
	DefaultSlowWindow = 200
)

// BacktestTool runs SMA-crossover backtests through the strategy engine.
type BacktestTool struct {
	engine *strategy.Engine
}

// NewBacktestTool creates the backtest.run tool.
func NewBacktestTool(engine *strategy.Engine) *BacktestTool {
	return &BacktestTool{engine: engine}
}

func (t *BacktestTool) Name() string { return "backtest.run" }

// Run executes the backtest for each requested symbol and aggregates.
func (t *BacktestTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var args BacktestArgs
	if err := BindArgs(t.Name(), raw, &args); err != nil {
		return nil, err
	}

	if args.Strategy == "" {
		args.Strategy = strategy.SMACrossName
	}
	if args.Strategy != strategy.SMACrossName {
		return nil, &ArgsError{Tool: t.Name(), Reason: fmt.Sprintf("unsupported strategy %q", args.Strategy)}
	}
	if len(args.Symbols) == 0 {
		args.Symbols = []string{"SPY"}
	}

	fast, slow := DefaultFastWindow, DefaultSlowWindow
	if args.Params != nil {
		fast, slow = args.Params.Fast, args.Params.Slow
	}

	perSymbol := make(map[string]*strategy.Metrics, len(args.Symbols))
	sharpes := make([]float64, 0, len(args.Symbols))
	returns := make([]float64, 0, len(args.Symbols))
	vols := make([]float64, 0, len(args.Symbols))
	worstDD := 0.0

	for _, symbol := range args.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		metrics, err := t.engine.RunSMACross(symbol, fast, slow)
		if err != nil {
			return nil, fmt.Errorf("backtest for %s failed: %w", symbol, err)
		}

		perSymbol[symbol] = metrics
		sharpes = append(sharpes, metrics.Sharpe)
		returns = append(returns, metrics.TotalReturn)
		vols = append(vols, metrics.VolAnnual)
		if metrics.MaxDrawdown > worstDD {
			worstDD = metrics.MaxDrawdown
		}
	}

	return &BacktestResult{
		Strategy:    args.Strategy,
		Symbols:     args.Symbols,
		Sharpe:      formulas.Mean(sharpes),
		MaxDrawdown: worstDD,
		TotalReturn: formulas.Mean(returns),
		VolAnnual:   formulas.Mean(vols),
		Params:      map[string]int{"fast": fast, "slow": slow},
		PerSymbol:   perSymbol,
	}, nil
}
