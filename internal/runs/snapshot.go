package runs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotFileName is the registry snapshot file, written under the data
// directory at shutdown and loaded at startup.
const SnapshotFileName = "runs.msgpack"

// SaveSnapshot persists the registry's runs to a msgpack file via temp file
// and rename.
func SaveSnapshot(path string, registry *Registry) error {
	data, err := msgpack.Marshal(registry.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode run snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".runs_*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot restores runs from a previous snapshot into the registry.
// A missing file is not an error; a corrupt one is.
func LoadSnapshot(path string, registry *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read run snapshot: %w", err)
	}

	var saved []*Run
	if err := msgpack.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to decode run snapshot: %w", err)
	}

	registry.Restore(saved)
	return nil
}
