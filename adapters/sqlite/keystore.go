package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/ports"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, owner, name, prefix, hash, tier, expires_at, revoked_at, created_at`

// GetByPrefix retrieves keys matching a lookup prefix.
func (s *KeyStore) GetByPrefix(ctx context.Context, prefix string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE prefix = ?
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query keys by prefix: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE id = ?
	`, id)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ErrNotFound
	}
	return k, err
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.Owner, k.Name, k.Prefix, k.Hash, string(k.Tier),
		nullTime(k.ExpiresAt), nullTime(k.RevokedAt), k.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("key %s: %w", k.ID, ports.ErrConflict)
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

// Revoke marks a key as revoked. Revoking twice keeps the first timestamp.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	return requireRow(result)
}

// SetTier changes the tier of a key.
func (s *KeyStore) SetTier(ctx context.Context, id string, t tier.Tier) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET tier = ? WHERE id = ?`, string(t), id)
	if err != nil {
		return fmt.Errorf("set key tier: %w", err)
	}
	return requireRow(result)
}

// ListByOwner returns all keys of a tenant, newest first.
func (s *KeyStore) ListByOwner(ctx context.Context, owner string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE owner = ?
		ORDER BY created_at DESC, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query keys by owner: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var t string
	var expiresAt, revokedAt sql.NullTime

	err := row.Scan(&k.ID, &k.Owner, &k.Name, &k.Prefix, &k.Hash, &t, &expiresAt, &revokedAt, &k.CreatedAt)
	if err != nil {
		return key.Key{}, err
	}
	k.Tier = tier.Tier(t)
	k.ExpiresAt = timePtr(expiresAt)
	k.RevokedAt = timePtr(revokedAt)
	k.CreatedAt = k.CreatedAt.UTC()
	return k, nil
}

func scanKeys(rows *sql.Rows) ([]key.Key, error) {
	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
