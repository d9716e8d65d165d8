// Package server provides the HTTP server and routing for Aegis.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/config"
	"github.com/aegis-trader/aegis/internal/database"
	"github.com/aegis-trader/aegis/internal/events"
	"github.com/aegis-trader/aegis/internal/policy"
	"github.com/aegis-trader/aegis/internal/runs"
	"github.com/aegis-trader/aegis/internal/sweep"
	"github.com/aegis-trader/aegis/internal/tools"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	RuntimeDB *database.DB

	Registry  *runs.Registry
	Executor  *runs.Executor
	Artifacts *runs.ArtifactStore
	Tools     *tools.Registry
	Gate      *policy.Gate
	EventBus  *events.Bus
	Loader    *sweep.Loader
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	runtimeDB *database.DB
	registry  *runs.Registry
	executor  *runs.Executor
	artifacts *runs.ArtifactStore
	tools     *tools.Registry
	gate      *policy.Gate
	eventBus  *events.Bus
	loader    *sweep.Loader

	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		runtimeDB: cfg.RuntimeDB,
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		artifacts: cfg.Artifacts,
		tools:     cfg.Tools,
		gate:      cfg.Gate,
		eventBus:  cfg.EventBus,
		loader:    cfg.Loader,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.RuntimeDB, cfg.Registry, cfg.Tools)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the configured router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// Multi-run orchestration
	s.router.Post("/multi-run", s.handleSubmitMultiRun)
	s.router.Get("/multi-run/{run_id}", s.handleGetRun)

	// Single-shot tool dispatch
	s.router.Post("/tool/run", s.handleToolRun)

	// Persisted artifacts
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{run_id}/artifact", s.handleGetArtifact)

	s.router.Route("/api", func(r chi.Router) {
		// Event streams: SSE and websocket
		streamHandler := NewEventsStreamHandler(s.eventBus, s.log)
		r.Get("/events/stream", streamHandler.ServeHTTP)

		wsHandler := NewEventsWSHandler(s.eventBus, s.log)
		r.Get("/events/ws", wsHandler.ServeHTTP)

		// Sweep rankings
		r.Get("/sweep/rankings", s.handleSweepRankings)
		r.Get("/sweep/rankings.csv", s.handleSweepRankingsCSV)

		// System monitoring
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Msg("HTTP request")
	})
}
