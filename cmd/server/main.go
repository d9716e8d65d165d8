// Aegis is a trading research orchestrator: it dispatches backtest, data
// and risk tools behind a policy gate, tracks multi-run jobs, and serves
// run artifacts and sweep rankings over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aegis-trader/aegis/internal/backup"
	"github.com/aegis-trader/aegis/internal/config"
	"github.com/aegis-trader/aegis/internal/database"
	"github.com/aegis-trader/aegis/internal/events"
	"github.com/aegis-trader/aegis/internal/policy"
	"github.com/aegis-trader/aegis/internal/runs"
	"github.com/aegis-trader/aegis/internal/scheduler"
	"github.com/aegis-trader/aegis/internal/server"
	"github.com/aegis-trader/aegis/internal/strategy"
	"github.com/aegis-trader/aegis/internal/sweep"
	"github.com/aegis-trader/aegis/internal/tools"
	"github.com/aegis-trader/aegis/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aegis: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting Aegis")

	// Runtime database: rate-limit buckets and the run index
	runtimeDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "runtime.db"),
		Profile: database.ProfileStandard,
		Name:    "runtime",
	})
	if err != nil {
		return fmt.Errorf("open runtime database: %w", err)
	}
	defer runtimeDB.Close()

	if err := runtimeDB.Migrate(); err != nil {
		return fmt.Errorf("migrate runtime database: %w", err)
	}

	// Policy gate: allow/deny lists plus hourly rate limits
	policyCfg, err := policy.LoadConfig(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	buckets := policy.NewBucketStore(runtimeDB.Conn(), log)
	gate := policy.NewGate(policyCfg, buckets, log)

	// Strategy engine and the tools it powers
	prices := strategy.NewFileProvider(filepath.Join(cfg.DataDir, "prices"), log)
	engine := strategy.NewEngine(prices, log)

	toolRegistry := tools.NewRegistry(log)
	for _, tool := range []tools.Tool{
		tools.NewBacktestTool(engine),
		tools.NewDataFetchTool(prices),
		tools.NewRiskSimulateTool(),
	} {
		if err := toolRegistry.Register(tool); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	// Event bus feeds the SSE/websocket streams
	eventBus := events.NewBus(log)
	eventManager := events.NewManager(eventBus, log)

	// Run tracking: in-memory registry mirrored to SQLite, artifacts on disk,
	// full state snapshotted across restarts
	registry := runs.NewRegistry(runs.NewIndexStore(runtimeDB.Conn(), log), log)
	artifacts, err := runs.NewArtifactStore(cfg.RunsDir, log)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}

	snapshotPath := filepath.Join(cfg.DataDir, runs.SnapshotFileName)
	if err := runs.LoadSnapshot(snapshotPath, registry); err != nil {
		log.Warn().Err(err).Msg("Failed to restore run snapshot, starting empty")
	}

	executor := runs.NewExecutor(registry, artifacts, toolRegistry, gate,
		eventManager, time.Duration(cfg.RunTimeoutSeconds)*time.Second, log)

	loader := sweep.NewLoader(log)

	// Background maintenance jobs
	sched := scheduler.New(log)
	if err := sched.AddJob("0 */15 * * * *", scheduler.NewSweepRankJob(loader, cfg.SweepDir, eventManager, log)); err != nil {
		return fmt.Errorf("schedule sweep ranking: %w", err)
	}
	if err := sched.AddJob("@hourly", scheduler.NewBucketPruneJob(buckets, log)); err != nil {
		return fmt.Errorf("schedule bucket pruning: %w", err)
	}

	if cfg.Backup.Enabled {
		objectClient, err := backup.NewObjectClient(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("init backup client: %w", err)
		}
		backupService := backup.NewService(objectClient, cfg.RunsDir, cfg.SweepDir,
			cfg.Backup.RetentionDays, eventManager, log)
		if err := sched.AddJob("@every 24h", scheduler.NewBackupJob(backupService, log)); err != nil {
			return fmt.Errorf("schedule backups: %w", err)
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Artifact backups enabled")
	} else {
		log.Info().Msg("Artifact backups disabled (no bucket configured)")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		RuntimeDB: runtimeDB,
		Registry:  registry,
		Executor:  executor,
		Artifacts: artifacts,
		Tools:     toolRegistry,
		Gate:      gate,
		EventBus:  eventBus,
		Loader:    loader,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	// Stop accepting work, then drain in dependency order: scheduler first,
	// then in-flight runs, then persist state, then close the listener.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := executor.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Executor did not drain cleanly")
	}

	if err := runs.SaveSnapshot(snapshotPath, registry); err != nil {
		log.Error().Err(err).Msg("Failed to persist run snapshot")
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := runtimeDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
