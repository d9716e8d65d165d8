package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/events"
	"github.com/aegis-trader/aegis/pkg/formulas"
)

// BacktestToolName is the tool the executor invokes for every
// (strategy, symbol) pair.
const BacktestToolName = "backtest.run"

// Dispatcher routes tool calls by name.
type Dispatcher interface {
	Has(name string) bool
	Dispatch(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
}

// Gate guards tool execution with policy and rate-limit checks.
type Gate interface {
	Check(toolName string) error
}

// Executor runs submitted multi-run jobs in the background. Submit returns
// the run id before any tool executes; each job then runs on its own
// goroutine under a deadline, so a stuck tool call cannot pin a run in
// RUNNING forever.
type Executor struct {
	registry   *Registry
	artifacts  *ArtifactStore
	dispatcher Dispatcher
	gate       Gate
	events     *events.Manager
	timeout    time.Duration
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor creates a job executor. timeout bounds each run's execution.
func NewExecutor(
	registry *Registry,
	artifacts *ArtifactStore,
	dispatcher Dispatcher,
	gate Gate,
	eventManager *events.Manager,
	timeout time.Duration,
	log zerolog.Logger,
) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		registry:   registry,
		artifacts:  artifacts,
		dispatcher: dispatcher,
		gate:       gate,
		events:     eventManager,
		timeout:    timeout,
		log:        log.With().Str("component", "job_executor").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit validates the request, creates a QUEUED run, schedules its execution,
// and returns immediately. Policy, rate-limit, and unknown-tool errors fail
// fast here: no run id is ever created for a request that cannot run.
func (e *Executor) Submit(req Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !e.dispatcher.Has(BacktestToolName) {
		return nil, fmt.Errorf("tool %s is not registered", BacktestToolName)
	}

	if err := e.gate.Check(BacktestToolName); err != nil {
		return nil, err
	}

	run := e.registry.Create(req)

	e.events.Emit(events.RunQueued, "runs", map[string]interface{}{
		"run_id": run.RunID,
		"pairs":  req.Pairs(),
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(run.RunID, req)
	}()

	return run, nil
}

// Shutdown cancels in-flight runs and waits for their goroutines to finish
// or ctx to expire.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown timed out: %w", ctx.Err())
	}
}

// execute drives one run to its terminal state. Pairs are attempted in the
// deterministic order of the strategies×symbols cross-product, outer loop
// over strategies. A pair failure is recorded and never aborts the sweep;
// only deadline/cancellation stops early, and only an artifact write failure
// marks the run FAILED.
func (e *Executor) execute(runID string, req Request) {
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	if err := e.registry.MarkRunning(runID); err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("Failed to mark run running")
		return
	}

	e.events.Emit(events.RunStarted, "runs", map[string]interface{}{"run_id": runID})

	results := make([]PairResult, 0, req.Pairs())
	pairErrors := make([]PairError, 0)
	canceled := false

pairs:
	for _, strategy := range req.Strategies {
		for _, symbol := range req.Symbols {
			if ctx.Err() != nil {
				canceled = true
				break pairs
			}

			output, err := e.runPair(ctx, strategy, symbol)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					canceled = true
					break pairs
				}

				pairErrors = append(pairErrors, PairError{
					Strategy: strategy,
					Symbol:   symbol,
					Error:    err.Error(),
				})
			} else {
				results = append(results, PairResult{
					Strategy: strategy,
					Symbol:   symbol,
					Output:   output,
				})
			}

			e.events.Emit(events.PairCompleted, "runs", map[string]interface{}{
				"run_id":   runID,
				"strategy": strategy,
				"symbol":   symbol,
				"ok":       err == nil,
			})
		}
	}

	status := StatusComplete
	reason := ""
	switch {
	case canceled:
		status = StatusCanceled
		reason = "run deadline exceeded or canceled"
	case len(pairErrors) > 0:
		status = StatusCompleteWithErrors
	}

	artifact := &Artifact{
		RunID:       runID,
		Status:      status,
		Request:     req,
		Results:     results,
		Errors:      pairErrors,
		Summary:     summarize(req, results, pairErrors),
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}

	path, err := e.artifacts.Write(runID, artifact)
	if err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("Artifact write failed")
		if ferr := e.registry.Finish(runID, StatusFailed, "", err.Error()); ferr != nil {
			e.log.Error().Err(ferr).Str("run_id", runID).Msg("Failed to mark run failed")
		}
		e.events.Emit(events.RunFinished, "runs", map[string]interface{}{
			"run_id": runID,
			"status": string(StatusFailed),
		})
		return
	}

	if err := e.registry.Finish(runID, status, path, reason); err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("Failed to finish run")
		return
	}

	e.events.Emit(events.RunFinished, "runs", map[string]interface{}{
		"run_id":     runID,
		"status":     string(status),
		"successful": len(results),
		"failed":     len(pairErrors),
	})
}

// runPair invokes the backtest tool for one (strategy, symbol) pair with no
// extra parameters, so the tool's own defaults apply.
func (e *Executor) runPair(ctx context.Context, strategy, symbol string) (interface{}, error) {
	args, err := json.Marshal(map[string]interface{}{
		"strategy": strategy,
		"symbols":  []string{symbol},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pair args: %w", err)
	}

	return e.dispatcher.Dispatch(ctx, BacktestToolName, args)
}

// summarize aggregates the finished run. Sharpe and drawdown fields missing
// or non-numeric in a success record are excluded from the aggregates, not
// treated as zero.
func summarize(req Request, results []PairResult, pairErrors []PairError) Summary {
	sharpes := make([]float64, 0, len(results))
	worstDD := 0.0

	for _, res := range results {
		if v, ok := numericField(res.Output, "sharpe"); ok {
			sharpes = append(sharpes, v)
		}
		if v, ok := numericField(res.Output, "maxDD"); ok && v > worstDD {
			worstDD = v
		}
	}

	return Summary{
		RequestedRuns:  req.Pairs(),
		SuccessfulRuns: len(results),
		FailedRuns:     len(pairErrors),
		MeanSharpe:     formulas.Mean(sharpes),
		WorstMaxDD:     worstDD,
	}
}

// numericField extracts a top-level numeric field from an arbitrary tool
// output record via its JSON form.
func numericField(output interface{}, key string) (float64, bool) {
	data, err := json.Marshal(output)
	if err != nil {
		return 0, false
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, false
	}

	v, ok := m[key].(float64)
	return v, ok
}
