package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/events"
)

// archivePrefix names backup archives: aegis-backup-2026-08-28-143022.tar.gz
const archivePrefix = "aegis-backup-"

const archiveTimeLayout = "2006-01-02-150405"

// minBackupsToKeep backups survive rotation regardless of age.
const minBackupsToKeep = 3

// ObjectStore is the object storage surface the service needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

// ManifestEntry describes one archived file.
type ManifestEntry struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Manifest is written into each archive alongside the archived files.
type Manifest struct {
	Timestamp time.Time       `json:"timestamp"`
	Files     []ManifestEntry `json:"files"`
}

// BackupInfo describes one archive stored in the bucket.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Service archives the run artifacts and sweep records and uploads the
// archive to object storage.
type Service struct {
	store         ObjectStore
	runsDir       string
	sweepDir      string
	retentionDays int
	events        *events.Manager
	log           zerolog.Logger
}

// NewService creates an artifact backup service.
func NewService(
	store ObjectStore,
	runsDir, sweepDir string,
	retentionDays int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:         store,
		runsDir:       runsDir,
		sweepDir:      sweepDir,
		retentionDays: retentionDays,
		events:        eventManager,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// BackupNow creates and uploads an archive, then rotates old ones. Used by
// the scheduled backup job.
func (s *Service) BackupNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	name, err := s.CreateAndUpload(ctx)
	if err != nil {
		return err
	}

	if err := s.RotateOldBackups(ctx); err != nil {
		// The upload succeeded; rotation failure is not fatal
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	s.events.Emit(events.BackupCompleted, "backup", map[string]interface{}{
		"archive": name,
	})

	return nil
}

// CreateAndUpload builds a tar.gz of the runs and sweeps directories and
// uploads it. Returns the archive name.
func (s *Service) CreateAndUpload(ctx context.Context) (string, error) {
	start := time.Now()
	archiveName := archivePrefix + start.UTC().Format(archiveTimeLayout) + ".tar.gz"

	tmp, err := os.CreateTemp("", "aegis_backup_*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create staging archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	fileCount, err := s.writeArchive(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to build archive: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind archive: %w", err)
	}

	if err := s.store.Upload(ctx, archiveName, tmp); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	info, _ := os.Stat(tmpPath)
	var sizeBytes int64
	if info != nil {
		sizeBytes = info.Size()
	}

	s.log.Info().
		Str("archive", archiveName).
		Int("files", fileCount).
		Int64("size_bytes", sizeBytes).
		Dur("duration", time.Since(start)).
		Msg("Backup uploaded")

	return archiveName, nil
}

// writeArchive streams both directories plus a manifest into a tar.gz.
func (s *Service) writeArchive(w io.Writer) (int, error) {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	manifest := Manifest{Timestamp: time.Now().UTC()}

	for prefix, dir := range map[string]string{
		"runs":   s.runsDir,
		"sweeps": s.sweepDir,
	} {
		entries, err := s.addDir(tw, prefix, dir)
		if err != nil {
			return 0, err
		}
		manifest.Files = append(manifest.Files, entries...)
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Mode:    0644,
		Size:    int64(len(manifestData)),
		ModTime: manifest.Timestamp,
	}); err != nil {
		return 0, err
	}
	if _, err := tw.Write(manifestData); err != nil {
		return 0, err
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gzw.Close(); err != nil {
		return 0, err
	}

	return len(manifest.Files), nil
}

// addDir archives every regular file in dir under the given prefix. A missing
// directory contributes nothing.
func (s *Service) addDir(tw *tar.Writer, prefix, dir string) ([]ManifestEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	manifest := make([]ManifestEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		name := prefix + "/" + entry.Name()
		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: info.ModTime(),
		}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}

		manifest = append(manifest, ManifestEntry{
			Path:      name,
			SizeBytes: int64(len(data)),
			Checksum:  fmt.Sprintf("sha256:%x", sha256.Sum256(data)),
		})
	}

	return manifest, nil
}

// ListBackups lists archives in the bucket, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		filename := *obj.Key
		if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimeLayout, timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes archives older than the retention period, always
// keeping the newest minBackupsToKeep. retentionDays 0 keeps everything.
func (s *Service) RotateOldBackups(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0

	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}

	return nil
}
