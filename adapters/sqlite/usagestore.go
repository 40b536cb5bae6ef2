package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/usage"
	"github.com/artpar/toolgate/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// RecordBatch appends multiple records in one transaction.
func (s *UsageStore) RecordBatch(ctx context.Context, records []usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (
			id, identity_key, kind, tier, owner, method, path, remote_ip, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare usage insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.IdentityKey, string(r.Kind), string(r.Tier), r.Owner,
			r.Method, r.Path, r.RemoteIP, r.Timestamp.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert usage record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListByIdentity returns records of one identity since a time, newest first.
func (s *UsageStore) ListByIdentity(ctx context.Context, identityKey string, since time.Time, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_key, kind, tier, owner, method, path, remote_ip, ts
		FROM usage_records
		WHERE identity_key = ? AND ts >= ?
		ORDER BY ts DESC, id
		LIMIT ?
	`, identityKey, since.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var r usage.Record
		var kind, t string
		var ts int64
		if err := rows.Scan(&r.ID, &r.IdentityKey, &kind, &t, &r.Owner, &r.Method, &r.Path, &r.RemoteIP, &ts); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.Kind = identity.Kind(kind)
		r.Tier = tier.Tier(t)
		r.Timestamp = time.UnixMilli(ts).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
