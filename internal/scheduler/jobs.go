package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/events"
	"github.com/aegis-trader/aegis/internal/policy"
	"github.com/aegis-trader/aegis/internal/sweep"
)

// RankingsFileName is the CSV the sweep-rank job writes next to the records.
const RankingsFileName = "rankings.csv"

// SweepRankJob re-ranks the sweep record directory and exports the table.
type SweepRankJob struct {
	loader   *sweep.Loader
	sweepDir string
	events   *events.Manager
	log      zerolog.Logger
}

// NewSweepRankJob creates the sweep ranking job.
func NewSweepRankJob(loader *sweep.Loader, sweepDir string, eventManager *events.Manager, log zerolog.Logger) *SweepRankJob {
	return &SweepRankJob{
		loader:   loader,
		sweepDir: sweepDir,
		events:   eventManager,
		log:      log.With().Str("job", "sweep_rank").Logger(),
	}
}

func (j *SweepRankJob) Name() string { return "sweep_rank" }

func (j *SweepRankJob) Run() error {
	rows, err := j.loader.Load(j.sweepDir)
	if err != nil {
		if os.IsNotExist(err) {
			j.log.Debug().Msg("No sweep directory yet, nothing to rank")
			return nil
		}
		return fmt.Errorf("sweep rank failed: %w", err)
	}

	if len(rows) == 0 {
		j.log.Debug().Msg("No sweep records to rank")
		return nil
	}

	ranked := sweep.Rank(rows)

	path := filepath.Join(j.sweepDir, RankingsFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create rankings file: %w", err)
	}
	defer f.Close()

	if err := sweep.WriteCSV(f, ranked); err != nil {
		return fmt.Errorf("failed to export rankings: %w", err)
	}

	j.events.Emit(events.SweepRanked, "scheduler", map[string]interface{}{
		"rows": len(ranked),
		"path": path,
	})

	j.log.Info().Int("rows", len(ranked)).Str("path", path).Msg("Sweep rankings updated")
	return nil
}

// BucketPruneRetention is how long spent rate-limit buckets are kept. Buckets
// are read only for the current hour, so anything older is dead weight.
const BucketPruneRetention = 48 * time.Hour

// BucketPruneJob deletes stale rate-limit buckets from the runtime database.
type BucketPruneJob struct {
	buckets *policy.BucketStore
	log     zerolog.Logger
}

// NewBucketPruneJob creates the rate-bucket maintenance job.
func NewBucketPruneJob(buckets *policy.BucketStore, log zerolog.Logger) *BucketPruneJob {
	return &BucketPruneJob{
		buckets: buckets,
		log:     log.With().Str("job", "bucket_prune").Logger(),
	}
}

func (j *BucketPruneJob) Name() string { return "bucket_prune" }

func (j *BucketPruneJob) Run() error {
	cutoff := time.Now().Add(-BucketPruneRetention).Unix() / 3600

	deleted, err := j.buckets.PruneBefore(cutoff)
	if err != nil {
		return fmt.Errorf("bucket prune failed: %w", err)
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Pruned stale rate buckets")
	}
	return nil
}

// BackupRunner is implemented by the artifact backup service.
type BackupRunner interface {
	BackupNow() error
}

// BackupJob uploads the artifact archive to object storage.
type BackupJob struct {
	service BackupRunner
	log     zerolog.Logger
}

// NewBackupJob creates the artifact backup job.
func NewBackupJob(service BackupRunner, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "artifact_backup").Logger(),
	}
}

func (j *BackupJob) Name() string { return "artifact_backup" }

func (j *BackupJob) Run() error {
	if err := j.service.BackupNow(); err != nil {
		return fmt.Errorf("artifact backup failed: %w", err)
	}
	return nil
}
