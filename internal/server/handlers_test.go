package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-trader/aegis/internal/config"
	"github.com/aegis-trader/aegis/internal/events"
	"github.com/aegis-trader/aegis/internal/policy"
	"github.com/aegis-trader/aegis/internal/runs"
	"github.com/aegis-trader/aegis/internal/strategy"
	"github.com/aegis-trader/aegis/internal/sweep"
	aegistesting "github.com/aegis-trader/aegis/internal/testing"
	"github.com/aegis-trader/aegis/internal/tools"
)

func newTestServer(t *testing.T, policyCfg *policy.Config) *Server {
	t.Helper()

	log := zerolog.Nop()
	db, cleanup := aegistesting.NewTestDB(t)
	t.Cleanup(cleanup)

	dataDir := t.TempDir()
	cfg := &config.Config{
		DataDir:           dataDir,
		RunsDir:           filepath.Join(dataDir, "runs"),
		SweepDir:          filepath.Join(dataDir, "sweeps"),
		Port:              0,
		DevMode:           true,
		RunTimeoutSeconds: 60,
	}
	require.NoError(t, os.MkdirAll(cfg.SweepDir, 0755))

	gate := policy.NewGate(policyCfg, policy.NewBucketStore(db.Conn(), log), log)

	prices := strategy.NewFileProvider(filepath.Join(dataDir, "prices"), log)
	engine := strategy.NewEngine(prices, log)

	toolRegistry := tools.NewRegistry(log)
	require.NoError(t, toolRegistry.Register(tools.NewBacktestTool(engine)))
	require.NoError(t, toolRegistry.Register(tools.NewDataFetchTool(prices)))
	require.NoError(t, toolRegistry.Register(tools.NewRiskSimulateTool()))

	registry := runs.NewRegistry(runs.NewIndexStore(db.Conn(), log), log)
	artifacts, err := runs.NewArtifactStore(cfg.RunsDir, log)
	require.NoError(t, err)

	bus := events.NewBus(log)
	executor := runs.NewExecutor(registry, artifacts, toolRegistry, gate,
		events.NewManager(bus, log), time.Duration(cfg.RunTimeoutSeconds)*time.Second, log)

	return New(Config{
		Log:       log,
		Config:    cfg,
		RuntimeDB: db,
		Registry:  registry,
		Executor:  executor,
		Artifacts: artifacts,
		Tools:     toolRegistry,
		Gate:      gate,
		EventBus:  bus,
		Loader:    sweep.NewLoader(log),
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &policy.Config{})

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleToolRun(t *testing.T) {
	s := newTestServer(t, &policy.Config{
		DeniedTools: []string{"data.fetch"},
		RateLimits:  map[string]int{"risk.simulate": 1},
	})

	t.Run("successful dispatch", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"tool": "risk.simulate",
			"args": map[string]interface{}{"position_usd": 10000, "vol": 0.2},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		result := body["result"].(map[string]interface{})
		assert.InDelta(t, 33.0, result["var_95"].(float64), 1e-9)
	})

	t.Run("rate limited on second call", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"tool": "risk.simulate",
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("policy denied", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"tool": "data.fetch",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown tool", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"tool": "train.run",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed args", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"tool": "backtest.run",
			"args": map[string]interface{}{"symbols": "not-a-list"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing tool name", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/tool/run", map[string]interface{}{
			"args": map[string]interface{}{},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleMultiRun(t *testing.T) {
	s := newTestServer(t, &policy.Config{})

	t.Run("submit and poll to completion", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/multi-run", map[string]interface{}{
			"name":       "smoke",
			"strategies": []string{"sma_cross"},
			"symbols":    []string{"ACME"},
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		body := decodeBody(t, rec)
		runID := body["run_id"].(string)
		assert.Equal(t, string(runs.StatusQueued), body["status"])
		assert.Len(t, runID, 12)

		require.Eventually(t, func() bool {
			poll := doJSON(t, s, http.MethodGet, "/multi-run/"+runID, nil)
			if poll.Code != http.StatusOK {
				return false
			}
			return runs.Status(decodeBody(t, poll)["status"].(string)).IsTerminal()
		}, 10*time.Second, 20*time.Millisecond)

		poll := doJSON(t, s, http.MethodGet, "/multi-run/"+runID, nil)
		final := decodeBody(t, poll)
		assert.Equal(t, string(runs.StatusComplete), final["status"])
		assert.NotEmpty(t, final["artifact"])

		// The persisted artifact is served back
		artifactRec := doJSON(t, s, http.MethodGet, "/runs/"+runID+"/artifact", nil)
		require.Equal(t, http.StatusOK, artifactRec.Code)
		artifact := decodeBody(t, artifactRec)
		summary := artifact["summary"].(map[string]interface{})
		assert.Equal(t, float64(1), summary["requested_runs"])
		assert.Equal(t, float64(1), summary["successful_runs"])
	})

	t.Run("unknown run id", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/multi-run/ffffffffffff", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid request", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/multi-run", map[string]interface{}{
			"strategies": []string{},
			"symbols":    []string{"ACME"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleMultiRun_PolicyDenied(t *testing.T) {
	s := newTestServer(t, &policy.Config{DeniedTools: []string{"backtest.run"}})

	rec := doJSON(t, s, http.MethodPost, "/multi-run", map[string]interface{}{
		"strategies": []string{"sma_cross"},
		"symbols":    []string{"ACME"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Fail-fast: no run record was created
	list := doJSON(t, s, http.MethodGet, "/runs", nil)
	assert.Equal(t, float64(0), decodeBody(t, list)["count"])
}

func TestHandleListRuns(t *testing.T) {
	s := newTestServer(t, &policy.Config{})

	rec := doJSON(t, s, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestHandleSweepRankings(t *testing.T) {
	s := newTestServer(t, &policy.Config{})

	record := `{"params": {"fast": 10, "slow": 100}, "sharpe": 1.0, "total_return": 0.2, "vol_annual": 0.15}`
	require.NoError(t, os.WriteFile(
		filepath.Join(s.cfg.SweepDir, "sma_cross_fast10_slow100.json"),
		[]byte(record), 0644))

	rec := doJSON(t, s, http.MethodGet, "/api/sweep/rankings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	rankings := body["rankings"].([]interface{})
	top := rankings[0].(map[string]interface{})
	assert.Equal(t, float64(10), top["fast"])
	assert.InDelta(t, 0.2, top["score"].(float64), 1e-9)

	csvRec := doJSON(t, s, http.MethodGet, "/api/sweep/rankings.csv", nil)
	require.Equal(t, http.StatusOK, csvRec.Code)
	assert.Contains(t, csvRec.Body.String(), "fast,slow,total_return,vol_annual,sharpe,score")
}

func TestHandleSystemStatus(t *testing.T) {
	s := newTestServer(t, &policy.Config{})

	rec := doJSON(t, s, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotNil(t, body["registered_tools"])
}
