package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/toolgate/domain/webhook"
	"github.com/artpar/toolgate/ports"
)

// WebhookStore implements ports.WebhookStore using SQLite.
type WebhookStore struct {
	db *DB
}

// NewWebhookStore creates a new SQLite webhook store.
func NewWebhookStore(db *DB) *WebhookStore {
	return &WebhookStore{db: db}
}

const webhookColumns = `id, owner, url, events, secret, created_at`

// Create stores a registration if the owner is below maxPerOwner.
// The count runs inside the INSERT statement, which holds the database
// write lock, so concurrent creates cannot both slip under the cap.
func (s *WebhookStore) Create(ctx context.Context, r webhook.Registration, maxPerOwner int) error {
	events, err := json.Marshal(r.Events)
	if err != nil {
		return fmt.Errorf("encode webhook events: %w", err)
	}
	if maxPerOwner <= 0 {
		maxPerOwner = -1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (`+webhookColumns+`)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE ? < 0 OR (SELECT COUNT(*) FROM webhooks WHERE owner = ?) < ?
	`, r.ID, r.Owner, r.URL, string(events), r.Secret, r.CreatedAt.UTC(),
		maxPerOwner, r.Owner, maxPerOwner)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("webhook %s: %w", r.ID, ports.ErrConflict)
		}
		return fmt.Errorf("insert webhook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("webhooks of %s: %w", r.Owner, ports.ErrLimitReached)
	}
	return nil
}

// Get retrieves a registration by ID.
func (s *WebhookStore) Get(ctx context.Context, id string) (webhook.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	r, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Registration{}, ErrNotFound
	}
	return r, err
}

// ListByOwner returns registrations of one tenant, oldest first.
func (s *WebhookStore) ListByOwner(ctx context.Context, owner string) ([]webhook.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE owner = ?
		ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var regs []webhook.Registration
	for rows.Next() {
		r, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// CountByOwner returns the number of registrations of one tenant.
func (s *WebhookStore) CountByOwner(ctx context.Context, owner string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks WHERE owner = ?`, owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhooks: %w", err)
	}
	return n, nil
}

// Delete removes a registration.
func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return requireRow(result)
}

func scanWebhook(row scanner) (webhook.Registration, error) {
	var r webhook.Registration
	var events string
	if err := row.Scan(&r.ID, &r.Owner, &r.URL, &events, &r.Secret, &r.CreatedAt); err != nil {
		return webhook.Registration{}, err
	}
	if err := json.Unmarshal([]byte(events), &r.Events); err != nil {
		return webhook.Registration{}, fmt.Errorf("decode webhook events: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// Ensure interface compliance.
var _ ports.WebhookStore = (*WebhookStore)(nil)
