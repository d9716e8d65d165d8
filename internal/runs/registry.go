package runs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry tracks every run submitted during the process lifetime. Runs are
// never evicted; restart continuity comes from snapshots (see snapshot.go)
// and the database index.
//
// All reads return deep copies, so a caller polling a run while the executor
// updates it sees either the pre-update or post-update record, never a mix.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run

	// index is optional; when set, lifecycle changes are mirrored to the
	// runtime database. Index failures are logged, not propagated: the
	// in-memory record is authoritative.
	index *IndexStore
	log   zerolog.Logger
}

// NewRegistry creates a run registry. index may be nil.
func NewRegistry(index *IndexStore, log zerolog.Logger) *Registry {
	return &Registry{
		runs:  make(map[string]*Run),
		index: index,
		log:   log.With().Str("component", "run_registry").Logger(),
	}
}

// Create registers a new QUEUED run for the request and returns its snapshot.
func (r *Registry) Create(req Request) *Run {
	now := time.Now().UTC()
	run := &Run{
		RunID:     NewRunID(),
		Status:    StatusQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.runs[run.RunID] = run
	snapshot := run.clone()
	r.mu.Unlock()

	r.mirror(snapshot)

	r.log.Info().
		Str("run_id", run.RunID).
		Int("pairs", req.Pairs()).
		Msg("Run created")

	return snapshot
}

// Get returns a point-in-time snapshot of a run.
func (r *Registry) Get(runID string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return run.clone(), nil
}

// List returns snapshots of all runs, newest first.
func (r *Registry) List() []*Run {
	r.mu.RLock()
	out := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

// MarkRunning transitions a QUEUED run to RUNNING.
func (r *Registry) MarkRunning(runID string) error {
	return r.transition(runID, StatusRunning, "", "")
}

// Finish assigns the terminal status, artifact reference, and updated
// timestamp in one atomic write. reason is retained for FAILED and CANCELED.
func (r *Registry) Finish(runID string, status Status, artifactPath, reason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	return r.transition(runID, status, artifactPath, reason)
}

func (r *Registry) transition(runID string, next Status, artifactPath, reason string) error {
	r.mu.Lock()
	run, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if !run.Status.CanTransitionTo(next) {
		from := run.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, next)
	}

	run.Status = next
	run.UpdatedAt = time.Now().UTC()
	if artifactPath != "" {
		run.Artifact = artifactPath
	}
	if reason != "" {
		run.Error = reason
	}
	snapshot := run.clone()
	r.mu.Unlock()

	r.mirror(snapshot)

	r.log.Info().
		Str("run_id", runID).
		Str("status", string(next)).
		Msg("Run state changed")

	return nil
}

// Snapshot returns deep copies of every run, for persistence.
func (r *Registry) Snapshot() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.clone())
	}
	return out
}

// Restore loads previously persisted runs. Runs left QUEUED or RUNNING by a
// crashed process are marked FAILED: their executor goroutine is gone and
// they can never finish.
func (r *Registry) Restore(saved []*Run) {
	now := time.Now().UTC()

	r.mu.Lock()
	restored, orphaned := 0, 0
	for _, run := range saved {
		if run == nil || run.RunID == "" || !run.Status.IsValid() {
			continue
		}

		c := run.clone()
		if !c.Status.IsTerminal() {
			c.Status = StatusFailed
			c.Error = "process restarted before run finished"
			c.UpdatedAt = now
			orphaned++
		}
		r.runs[c.RunID] = c
		restored++
	}
	r.mu.Unlock()

	if restored > 0 {
		r.log.Info().
			Int("restored", restored).
			Int("orphaned", orphaned).
			Msg("Restored runs from snapshot")
	}
}

func (r *Registry) mirror(run *Run) {
	if r.index == nil {
		return
	}
	if err := r.index.Upsert(run); err != nil {
		r.log.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to mirror run to index")
	}
}
