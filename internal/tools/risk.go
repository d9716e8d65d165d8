package tools

import (
	"context"
	"encoding/json"
	"math"
)

// RiskSimulateArgs is the request shape for risk.simulate.
type RiskSimulateArgs struct {
	PositionUSD float64 `json:"position_usd"`
	Vol         float64 `json:"vol"`
}

// RiskSimulateResult reports the 95% one-day value-at-risk for a position.
type RiskSimulateResult struct {
	VaR95  float64          `json:"var_95"`
	Inputs RiskSimulateArgs `json:"inputs"`
}

// var95ZScore is the one-tailed z-score at 95% confidence.
const var95ZScore = 1.65

// RiskSimulateTool computes a parametric VaR estimate.
type RiskSimulateTool struct{}

// NewRiskSimulateTool creates the risk.simulate tool.
func NewRiskSimulateTool() *RiskSimulateTool {
	return &RiskSimulateTool{}
}

func (t *RiskSimulateTool) Name() string { return "risk.simulate" }

func (t *RiskSimulateTool) Run(_ context.Context, raw json.RawMessage) (any, error) {
	var args RiskSimulateArgs
	if err := BindArgs(t.Name(), raw, &args); err != nil {
		return nil, err
	}

	if args.PositionUSD == 0 {
		args.PositionUSD = 10000
	}
	if args.Vol == 0 {
		args.Vol = 0.2
	}

	var95 := args.PositionUSD * args.Vol * var95ZScore / 100

	return &RiskSimulateResult{
		VaR95:  math.Round(var95*100) / 100,
		Inputs: args,
	}, nil
}
