package policy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Gate enforces the tool policy: allow/deny lists and per-tool hourly rate
// limits. It is safe for concurrent use; the list lookups are immutable after
// construction and the bucket store serializes its own updates.
type Gate struct {
	allowed map[string]bool
	denied  map[string]bool
	limits  map[string]int
	buckets *BucketStore
	log     zerolog.Logger

	// now is replaceable in tests to pin the hour bucket.
	now func() time.Time
}

// NewGate creates a policy gate from a loaded configuration.
func NewGate(cfg *Config, buckets *BucketStore, log zerolog.Logger) *Gate {
	allowed := make(map[string]bool, len(cfg.AllowedTools))
	for _, name := range cfg.AllowedTools {
		allowed[name] = true
	}

	denied := make(map[string]bool, len(cfg.DeniedTools))
	for _, name := range cfg.DeniedTools {
		denied[name] = true
	}

	return &Gate{
		allowed: allowed,
		denied:  denied,
		limits:  cfg.RateLimits,
		buckets: buckets,
		log:     log.With().Str("component", "policy_gate").Logger(),
		now:     time.Now,
	}
}

// Allowed reports whether the tool passes the allow/deny lists.
// Deny wins over allow. An empty allow-list admits everything not denied.
func (g *Gate) Allowed(toolName string) bool {
	if g.denied[toolName] {
		return false
	}
	if len(g.allowed) == 0 {
		return true
	}
	return g.allowed[toolName]
}

// CheckRateLimit admits or rejects a call against the tool's hourly budget.
// Admitted calls count against the current hour bucket. Tools without a
// configured limit are never limited. Returns ErrRateLimited when the budget
// for the current hour is exhausted.
func (g *Gate) CheckRateLimit(toolName string) error {
	limit, ok := g.limits[toolName]
	if !ok || limit <= 0 {
		return nil
	}

	hourIndex := g.now().Unix() / 3600

	admitted, err := g.buckets.IncrementWithinLimit(toolName, hourIndex, limit)
	if err != nil {
		return fmt.Errorf("rate limit check for %s: %w", toolName, err)
	}

	if !admitted {
		g.log.Warn().
			Str("tool", toolName).
			Int("limit", limit).
			Int64("hour", hourIndex).
			Msg("Tool call rejected by rate limit")
		return fmt.Errorf("%w: %s (%d per hour)", ErrRateLimited, toolName, limit)
	}

	return nil
}

// Check runs both policy checks in order: allow/deny first, then rate limit.
// A rejected call never consumes rate-limit budget.
func (g *Gate) Check(toolName string) error {
	if !g.Allowed(toolName) {
		return fmt.Errorf("%w: %s", ErrNotAllowed, toolName)
	}
	return g.CheckRateLimit(toolName)
}
