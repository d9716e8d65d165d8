package runs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact(runID string, status Status) *Artifact {
	return &Artifact{
		RunID:   runID,
		Status:  status,
		Request: testRequest(),
		Results: []PairResult{
			{Strategy: "sma_cross", Symbol: "SPY", Output: map[string]interface{}{"sharpe": 1.2}},
		},
		Errors:      []PairError{},
		Summary:     Summary{RequestedRuns: 2, SuccessfulRuns: 1, FailedRuns: 1, MeanSharpe: 1.2},
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestArtifactStore_WriteRead(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	path, err := store.Write("abc123def456", testArtifact("abc123def456", StatusComplete))
	require.NoError(t, err)
	assert.Contains(t, path, "abc123def456.json")

	got, err := store.Read("abc123def456")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, 1, got.Summary.SuccessfulRuns)
}

func TestArtifactStore_WriteIdempotent(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.Write("abc123def456", testArtifact("abc123def456", StatusComplete))
	require.NoError(t, err)

	// Second write for the same run id replaces the first
	_, err = store.Write("abc123def456", testArtifact("abc123def456", StatusCompleteWithErrors))
	require.NoError(t, err)

	got, err := store.Read("abc123def456")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleteWithErrors, got.Status)

	infos, err := store.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestArtifactStore_ReadMissing(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.Read("abc123def456")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactStore_RejectsInvalidRunIDs(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.Write("../escape", testArtifact("x", StatusComplete))
	assert.Error(t, err)

	_, err = store.Read("../../etc/passwd")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactStore_ListNewestFirst(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.Write("aaaaaaaaaaaa", testArtifact("aaaaaaaaaaaa", StatusComplete))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = store.Write("bbbbbbbbbbbb", testArtifact("bbbbbbbbbbbb", StatusComplete))
	require.NoError(t, err)

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "bbbbbbbbbbbb", infos[0].RunID)
	assert.Equal(t, "aaaaaaaaaaaa", infos[1].RunID)
}
