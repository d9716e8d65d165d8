package runs

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// IndexStore mirrors run lifecycle rows into the runtime database so run
// history survives restarts and can be listed without touching the in-memory
// registry. The registry remains the source of truth while the process runs.
type IndexStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewIndexStore creates a new run index store
func NewIndexStore(db *sql.DB, log zerolog.Logger) *IndexStore {
	return &IndexStore{
		db:  db,
		log: log.With().Str("repo", "run_index").Logger(),
	}
}

// Upsert writes or replaces the index row for a run.
func (s *IndexStore) Upsert(run *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO run_index (run_id, status, artifact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id)
		DO UPDATE SET status = excluded.status,
		              artifact = excluded.artifact,
		              updated_at = excluded.updated_at
	`, run.RunID, string(run.Status), run.Artifact, run.CreatedAt.Unix(), run.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert run index: %w", err)
	}
	return nil
}

// StatusCounts returns the number of indexed runs per status.
func (s *IndexStore) StatusCounts() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM run_index GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run index: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}

	return counts, rows.Err()
}
