package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-trader/aegis/internal/policy"
	"github.com/aegis-trader/aegis/internal/runs"
	"github.com/aegis-trader/aegis/internal/sweep"
	"github.com/aegis-trader/aegis/internal/tools"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.runtimeDB.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmitMultiRun handles POST /multi-run. The response carries the run
// id before any tool executes; callers poll GET /multi-run/{run_id}.
func (s *Server) handleSubmitMultiRun(w http.ResponseWriter, r *http.Request) {
	var req runs.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	run, err := s.executor.Submit(req)
	if err != nil {
		respondError(w, statusForSubmitError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":     run.RunID,
		"status":     run.Status,
		"created_at": run.CreatedAt.Format(time.RFC3339),
	})
}

// handleGetRun handles GET /multi-run/{run_id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	run, err := s.registry.Get(runID)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// toolRunRequest is the body of POST /tool/run.
type toolRunRequest struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// handleToolRun handles POST /tool/run: policy check, then dispatch.
// Policy denial is 403, rate limiting 429, unknown tool or bad args 400.
func (s *Server) handleToolRun(w http.ResponseWriter, r *http.Request) {
	var req toolRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Tool == "" {
		respondError(w, http.StatusBadRequest, "tool name is required")
		return
	}

	if err := s.gate.Check(req.Tool); err != nil {
		switch {
		case errors.Is(err, policy.ErrNotAllowed):
			respondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, policy.ErrRateLimited):
			respondError(w, http.StatusTooManyRequests, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	result, err := s.tools.Dispatch(r.Context(), req.Tool, req.Args)
	if err != nil {
		var argsErr *tools.ArgsError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &argsErr):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tool":   req.Tool,
		"result": result,
	})
}

// handleListRuns handles GET /runs: persisted artifacts, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	infos, err := s.artifacts.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  infos,
		"count": len(infos),
	})
}

// handleGetArtifact handles GET /runs/{run_id}/artifact
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	artifact, err := s.artifacts.Read(runID)
	if err != nil {
		if errors.Is(err, runs.ErrArtifactNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, artifact)
}

// handleSweepRankings handles GET /api/sweep/rankings
func (s *Server) handleSweepRankings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.loader.Load(s.cfg.SweepDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ranked := sweep.Rank(rows)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rankings": ranked,
		"count":    len(ranked),
	})
}

// handleSweepRankingsCSV handles GET /api/sweep/rankings.csv
func (s *Server) handleSweepRankingsCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := s.loader.Load(s.cfg.SweepDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="rankings.csv"`)
	if err := sweep.WriteCSV(w, sweep.Rank(rows)); err != nil {
		s.log.Error().Err(err).Msg("Failed to stream rankings CSV")
	}
}

// statusForSubmitError maps submission failures to HTTP status codes.
// Submission-time errors fail fast: no run id exists when these fire.
func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, policy.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, policy.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
