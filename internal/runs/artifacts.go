package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrArtifactNotFound is returned when no artifact exists for a run id.
var ErrArtifactNotFound = errors.New("artifact not found")

// runIDPattern guards against path traversal through run ids read from URLs.
var runIDPattern = regexp.MustCompile(`^[a-f0-9]{12}$`)

// ArtifactStore persists one JSON document per run, keyed by run id. Writes
// go through a temp file and rename, so a concurrent reader sees either the
// previous complete document or the new one, never a partial write. Re-writing
// a run id replaces the prior content.
type ArtifactStore struct {
	dir string
	log zerolog.Logger
}

// NewArtifactStore creates an artifact store rooted at dir.
func NewArtifactStore(dir string, log zerolog.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &ArtifactStore{
		dir: dir,
		log: log.With().Str("component", "artifact_store").Logger(),
	}, nil
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Write persists the artifact and returns its path.
func (s *ArtifactStore) Write(runID string, artifact *Artifact) (string, error) {
	if !runIDPattern.MatchString(runID) {
		return "", fmt.Errorf("invalid run id: %q", runID)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	path := s.path(runID)
	tmp, err := os.CreateTemp(s.dir, ".artifact_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to replace artifact: %w", err)
	}

	s.log.Debug().Str("run_id", runID).Str("path", path).Msg("Artifact written")
	return path, nil
}

// Read loads the artifact for a run id.
func (s *ArtifactStore) Read(runID string) (*Artifact, error) {
	if !runIDPattern.MatchString(runID) {
		return nil, fmt.Errorf("%w: invalid run id %q", ErrArtifactNotFound, runID)
	}

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", runID, err)
	}

	return &artifact, nil
}

// ArtifactInfo describes one persisted artifact for listings.
type ArtifactInfo struct {
	RunID      string    `json:"run_id"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// List returns the persisted artifacts, newest first.
func (s *ArtifactStore) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	infos := make([]ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		runID := strings.TrimSuffix(name, ".json")
		if !runIDPattern.MatchString(runID) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		infos = append(infos, ArtifactInfo{
			RunID:      runID,
			Path:       filepath.Join(s.dir, name),
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})

	return infos, nil
}

func (s *ArtifactStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
