package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/toolgate/ports"
)

// QuotaStore implements ports.QuotaStore using SQLite.
// Counters survive restarts and are shared by every process using the
// same database file. The increment is a single upsert statement, so
// SQLite's write lock makes it atomic.
type QuotaStore struct {
	db    *DB
	clock ports.Clock
}

// NewQuotaStore creates a new SQLite quota store. A nil clock uses the
// wall clock.
func NewQuotaStore(db *DB, clock ports.Clock) *QuotaStore {
	if clock == nil {
		clock = wallClock{}
	}
	return &QuotaStore{db: db, clock: clock}
}

// Increment adds one to a counter and returns the post-increment value.
// A counter whose expiry has passed restarts at 1.
func (s *QuotaStore) Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error) {
	now := s.clock.Now().Unix()
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_counters (counter_key, count, expires_at)
		VALUES (?, 1, ?)
		ON CONFLICT(counter_key) DO UPDATE SET
			count = CASE WHEN quota_counters.expires_at < ? THEN 1 ELSE quota_counters.count + 1 END,
			expires_at = CASE WHEN quota_counters.expires_at < ? THEN excluded.expires_at ELSE quota_counters.expires_at END
		RETURNING count
	`, counterKey, expiresAt.Unix(), now, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return count, nil
}

// Peek returns the current value of a counter.
func (s *QuotaStore) Peek(ctx context.Context, counterKey string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM quota_counters
		WHERE counter_key = ? AND expires_at >= ?
	`, counterKey, s.clock.Now().Unix()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota counter: %w", err)
	}
	return count, nil
}

// CleanupExpired deletes counters that expired before now.
func (s *QuotaStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quota_counters WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup quota counters: %w", err)
	}
	return result.RowsAffected()
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
