// Package runs owns the multi-run lifecycle: submission, background
// execution over the strategies×symbols cross-product, status tracking, and
// artifact persistence.
package runs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued             Status = "QUEUED"
	StatusRunning            Status = "RUNNING"
	StatusComplete           Status = "COMPLETE"
	StatusCompleteWithErrors Status = "COMPLETE_WITH_ERRORS"
	StatusFailed             Status = "FAILED"
	StatusCanceled           Status = "CANCELED"
)

// IsTerminal reports whether the status is final. Terminal runs are never
// mutated again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusCompleteWithErrors, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusComplete, StatusCompleteWithErrors, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only state machine:
// QUEUED → RUNNING → one terminal state, assigned exactly once.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning
	case StatusRunning:
		return next.IsTerminal()
	}
	return false
}

// ErrRunNotFound is returned when polling an unrecognized run id.
var ErrRunNotFound = errors.New("run not found")

// ErrInvalidTransition is returned for state changes the machine forbids.
var ErrInvalidTransition = errors.New("invalid run state transition")

// Request is the submitted multi-run job: every strategy backtested against
// every symbol.
type Request struct {
	Name       string   `json:"name,omitempty" msgpack:"name"`
	Symbols    []string `json:"symbols" msgpack:"symbols"`
	Strategies []string `json:"strategies" msgpack:"strategies"`
	Timeframe  string   `json:"timeframe,omitempty" msgpack:"timeframe"`
	Start      string   `json:"start,omitempty" msgpack:"start"`
	End        string   `json:"end,omitempty" msgpack:"end"`
}

// Validate checks the request is runnable.
func (r *Request) Validate() error {
	if len(r.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	if len(r.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, s := range r.Strategies {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("strategy names must be non-empty")
		}
	}
	for _, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("symbol names must be non-empty")
		}
	}
	return nil
}

// Pairs returns the number of (strategy, symbol) pairs the run will attempt.
func (r *Request) Pairs() int {
	return len(r.Strategies) * len(r.Symbols)
}

// Run is one submitted multi-run job. Owned by the Registry; mutated only
// through its transition methods.
type Run struct {
	RunID     string    `json:"run_id" msgpack:"run_id"`
	Status    Status    `json:"status" msgpack:"status"`
	Request   Request   `json:"request" msgpack:"request"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`

	// Artifact is the path of the persisted result document; empty until the
	// run reaches a terminal state.
	Artifact string `json:"artifact,omitempty" msgpack:"artifact"`

	// Error holds the fatal reason when Status is FAILED or CANCELED.
	Error string `json:"error,omitempty" msgpack:"error"`
}

// clone returns a deep copy so registry readers never share slices with the
// stored record.
func (r *Run) clone() *Run {
	c := *r
	c.Request.Symbols = append([]string(nil), r.Request.Symbols...)
	c.Request.Strategies = append([]string(nil), r.Request.Strategies...)
	return &c
}

// NewRunID generates an opaque 12-character run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// PairResult records one successful (strategy, symbol) backtest.
type PairResult struct {
	Strategy string      `json:"strategy"`
	Symbol   string      `json:"symbol"`
	Output   interface{} `json:"output"`
}

// PairError records one failed (strategy, symbol) backtest.
type PairError struct {
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Error    string `json:"error"`
}

// Summary aggregates a finished run's results. Computed once at the terminal
// transition and never recomputed.
type Summary struct {
	RequestedRuns  int     `json:"requested_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	FailedRuns     int     `json:"failed_runs"`
	MeanSharpe     float64 `json:"mean_sharpe"`
	WorstMaxDD     float64 `json:"worst_maxDD"`
}

// Artifact is the JSON document persisted for a finished run.
type Artifact struct {
	RunID       string       `json:"run_id"`
	Status      Status       `json:"status"`
	Request     Request      `json:"request"`
	Results     []PairResult `json:"results"`
	Errors      []PairError  `json:"errors"`
	Summary     Summary      `json:"summary"`
	CompletedAt string       `json:"completed_at"`
}
