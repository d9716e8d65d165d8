package sweep

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoader_TieredExtraction(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(zerolog.Nop())

	t.Run("nested params preferred", func(t *testing.T) {
		writeRecord(t, dir, "a_fast99_slow999.json",
			`{"params": {"fast": 10, "slow": 100}, "sharpe": 1.0, "total_return": 0.2, "vol_annual": 0.15}`)

		rows, err := loader.Load(dir)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		// Nested params win over the (misleading) filename
		assert.Equal(t, 10, rows[0].Fast)
		assert.Equal(t, 100, rows[0].Slow)
		require.NoError(t, os.Remove(filepath.Join(dir, "a_fast99_slow999.json")))
	})

	t.Run("flat fields next", func(t *testing.T) {
		writeRecord(t, dir, "flat.json",
			`{"fast": 20, "slow": 200, "sharpe": 0.5, "total_return": 0.1, "vol_annual": 0.2}`)

		rows, err := loader.Load(dir)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 20, rows[0].Fast)
		assert.Equal(t, 200, rows[0].Slow)
		require.NoError(t, os.Remove(filepath.Join(dir, "flat.json")))
	})

	t.Run("filename fallback", func(t *testing.T) {
		writeRecord(t, dir, "sma_cross_fast30_slow150.json",
			`{"sharpe": 0.8, "total_return": 0.05, "vol_annual": 0.12}`)

		rows, err := loader.Load(dir)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 30, rows[0].Fast)
		assert.Equal(t, 150, rows[0].Slow)
	})
}

func TestLoader_SkipsBadRecords(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(zerolog.Nop())

	writeRecord(t, dir, "good_fast10_slow100.json", `{"sharpe": 1.0, "total_return": 0.2}`)
	// Unrecoverable parameters
	writeRecord(t, dir, "no_params.json", `{"sharpe": 1.0}`)
	// Non-numeric metric
	writeRecord(t, dir, "bad_metric_fast10_slow50.json", `{"sharpe": "NaN-ish", "total_return": 0.1}`)
	// Not JSON at all
	writeRecord(t, dir, "garbage.json", `{{{`)

	rows, err := loader.Load(dir)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "good_fast10_slow100.json", rows[0].Source)
}

func TestLoader_MissingMetricsDefaultToZero(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(zerolog.Nop())

	writeRecord(t, dir, "sparse_fast10_slow100.json", `{"sharpe": 1.5}`)

	rows, err := loader.Load(dir)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].TotalReturn)
	assert.Zero(t, rows[0].VolAnnual)
	assert.InDelta(t, 1.5, rows[0].Sharpe, 1e-9)
	// Zero return clamps the score to zero
	assert.Zero(t, rows[0].Score)
}

func TestCompositeScore(t *testing.T) {
	assert.InDelta(t, 0.2, CompositeScore(1.0, 0.2), 1e-9)
	// Negative returns clamp to zero
	assert.Zero(t, CompositeScore(0.5, -0.1))
	assert.Zero(t, CompositeScore(-2.0, -0.5))
}

func TestRank_ScenarioOrdering(t *testing.T) {
	rows := []Row{
		{Fast: 20, Slow: 200, Sharpe: 0.5, TotalReturn: -0.1, Score: CompositeScore(0.5, -0.1)},
		{Fast: 10, Slow: 100, Sharpe: 1.0, TotalReturn: 0.2, Score: CompositeScore(1.0, 0.2)},
	}

	ranked := Rank(rows)

	require.Len(t, ranked, 2)
	assert.Equal(t, 10, ranked[0].Fast)
	assert.InDelta(t, 0.2, ranked[0].Score, 1e-9)
	assert.Equal(t, 20, ranked[1].Fast)
	assert.Zero(t, ranked[1].Score)

	// Input untouched
	assert.Equal(t, 20, rows[0].Fast)
}

func TestRank_StableTies(t *testing.T) {
	rows := []Row{
		{Fast: 10, Slow: 100, Score: 0.5},
		{Fast: 20, Slow: 200, Score: 0.5},
		{Fast: 30, Slow: 300, Score: 0.9},
	}

	ranked := Rank(rows)

	assert.Equal(t, 30, ranked[0].Fast)
	assert.Equal(t, 10, ranked[1].Fast)
	assert.Equal(t, 20, ranked[2].Fast)
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{Fast: 10, Slow: 100, TotalReturn: 0.2, VolAnnual: 0.15, Sharpe: 1.0, Score: 0.2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "fast,slow,total_return,vol_annual,sharpe,score\n")
	assert.Contains(t, out, "10,100,0.200000,0.150000,1.000000,0.200000\n")
}
