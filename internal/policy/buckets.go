package policy

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-trader/aegis/internal/database"
)

// BucketStore persists rate-limit counters in the runtime database so they
// survive process restarts. One row per (tool, hour) bucket, created lazily.
type BucketStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBucketStore creates a new rate-limit bucket store
func NewBucketStore(db *sql.DB, log zerolog.Logger) *BucketStore {
	return &BucketStore{
		db:  db,
		log: log.With().Str("repo", "rate_buckets").Logger(),
	}
}

// IncrementWithinLimit atomically increments the (tool, hour) bucket if its
// count is below limit. Returns true when the call was admitted (bucket
// incremented) and false when the bucket is full.
//
// The read-compare-increment runs inside a single transaction; SQLite
// serializes writers, so two concurrent processes cannot both observe
// count == limit-1 and push the bucket past its limit.
func (s *BucketStore) IncrementWithinLimit(toolName string, hourIndex int64, limit int) (bool, error) {
	admitted := false

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRow(
			`SELECT count FROM rate_buckets WHERE tool_name = ? AND hour_index = ?`,
			toolName, hourIndex,
		).Scan(&count)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read bucket: %w", err)
		}

		if count >= limit {
			return nil
		}

		_, err = tx.Exec(`
			INSERT INTO rate_buckets (tool_name, hour_index, count, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT (tool_name, hour_index)
			DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
		`, toolName, hourIndex, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to increment bucket: %w", err)
		}

		admitted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return admitted, nil
}

// Count returns the stored count for a (tool, hour) bucket, 0 if absent.
func (s *BucketStore) Count(toolName string, hourIndex int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT count FROM rate_buckets WHERE tool_name = ? AND hour_index = ?`,
		toolName, hourIndex,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read bucket count: %w", err)
	}

	return count, nil
}

// PruneBefore deletes buckets older than the given hour index. Run from the
// maintenance scheduler; stale buckets are never read again.
func (s *BucketStore) PruneBefore(hourIndex int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM rate_buckets WHERE hour_index < ?`, hourIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate buckets: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.log.Debug().Int64("deleted", deleted).Msg("Pruned stale rate buckets")
	}

	return deleted, nil
}
