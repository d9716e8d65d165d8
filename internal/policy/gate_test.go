package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aegistesting "github.com/aegis-trader/aegis/internal/testing"
)

func newTestGate(t *testing.T, cfg *Config) (*Gate, func()) {
	t.Helper()

	db, cleanup := aegistesting.NewTestDB(t)
	store := NewBucketStore(db.Conn(), zerolog.Nop())
	return NewGate(cfg, store, zerolog.Nop()), cleanup
}

func TestGate_Allowed(t *testing.T) {
	t.Run("deny wins over allow", func(t *testing.T) {
		g, cleanup := newTestGate(t, &Config{
			AllowedTools: []string{"backtest.run"},
			DeniedTools:  []string{"backtest.run"},
		})
		defer cleanup()

		assert.False(t, g.Allowed("backtest.run"))
	})

	t.Run("empty allow-list admits everything not denied", func(t *testing.T) {
		g, cleanup := newTestGate(t, &Config{
			DeniedTools: []string{"risk.simulate"},
		})
		defer cleanup()

		assert.True(t, g.Allowed("backtest.run"))
		assert.True(t, g.Allowed("data.fetch"))
		assert.False(t, g.Allowed("risk.simulate"))
	})

	t.Run("non-empty allow-list restricts to listed tools", func(t *testing.T) {
		g, cleanup := newTestGate(t, &Config{
			AllowedTools: []string{"backtest.run"},
		})
		defer cleanup()

		assert.True(t, g.Allowed("backtest.run"))
		assert.False(t, g.Allowed("data.fetch"))
	})
}

func TestGate_CheckRateLimit(t *testing.T) {
	g, cleanup := newTestGate(t, &Config{
		RateLimits: map[string]int{"backtest.run": 5},
	})
	defer cleanup()

	// Pin the clock so all calls land in the same hour bucket
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	// First 5 calls in the hour are admitted
	for i := 0; i < 5; i++ {
		require.NoError(t, g.CheckRateLimit("backtest.run"), "call %d should be admitted", i+1)
	}

	// 6th call in the same hour is limited
	err := g.CheckRateLimit("backtest.run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	// Next hour: bucket resets, first call admitted with count 1
	g.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, g.CheckRateLimit("backtest.run"))

	count, err := g.buckets.Count("backtest.run", base.Add(time.Hour).Unix()/3600)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGate_CheckRateLimit_Unlimited(t *testing.T) {
	g, cleanup := newTestGate(t, &Config{})
	defer cleanup()

	// No configured limit: never limited
	for i := 0; i < 20; i++ {
		require.NoError(t, g.CheckRateLimit("data.fetch"))
	}
}

func TestGate_Check(t *testing.T) {
	g, cleanup := newTestGate(t, &Config{
		DeniedTools: []string{"train.run"},
		RateLimits:  map[string]int{"backtest.run": 1},
	})
	defer cleanup()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	t.Run("denied tool rejected before rate limit", func(t *testing.T) {
		err := g.Check("train.run")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotAllowed))
	})

	t.Run("admitted then limited", func(t *testing.T) {
		require.NoError(t, g.Check("backtest.run"))

		err := g.Check("backtest.run")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRateLimited))
	})
}

func TestBucketStore_PruneBefore(t *testing.T) {
	db, cleanup := aegistesting.NewTestDB(t)
	defer cleanup()

	store := NewBucketStore(db.Conn(), zerolog.Nop())

	admitted, err := store.IncrementWithinLimit("backtest.run", 100, 5)
	require.NoError(t, err)
	require.True(t, admitted)

	admitted, err = store.IncrementWithinLimit("backtest.run", 200, 5)
	require.NoError(t, err)
	require.True(t, admitted)

	deleted, err := store.PruneBefore(150)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := store.Count("backtest.run", 200)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields empty policy", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cfg.AllowedTools)
		assert.Empty(t, cfg.DeniedTools)
		assert.Empty(t, cfg.RateLimits)
	})

	t.Run("parses allow deny and limits", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		content := `
allowed_tools:
  - backtest.run
  - data.fetch
denied_tools:
  - train.run
rate_limits:
  backtest.run: 5
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"backtest.run", "data.fetch"}, cfg.AllowedTools)
		assert.Equal(t, []string{"train.run"}, cfg.DeniedTools)
		assert.Equal(t, 5, cfg.RateLimits["backtest.run"])
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("allowed_tools: {not: [a list"), 0644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
