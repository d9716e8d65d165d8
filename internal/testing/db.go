// Package testing provides testing utilities and helpers for the aegis project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aegis-trader/aegis/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a file-backed SQLite runtime database for testing with the
// schema applied. Returns the database instance and a cleanup function that
// closes the connection and removes the file. Each test gets its own isolated
// database.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_runtime_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "runtime",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}

// TempDir creates a temporary directory for test artifacts and returns its
// path with a cleanup function.
func TempDir(t *testing.T, pattern string) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", fmt.Sprintf("%s_*", pattern))
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}

	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Warning: Failed to remove temporary directory %s: %v", dir, err)
		}
	}
}
