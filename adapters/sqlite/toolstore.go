package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/toolgate/domain/tool"
	"github.com/artpar/toolgate/ports"
)

// ToolStore implements ports.ToolStore using SQLite. Tool records are kept
// as JSON documents so new fields need no migration.
type ToolStore struct {
	db *DB
}

// NewToolStore creates a new SQLite tool store.
func NewToolStore(db *DB) *ToolStore {
	return &ToolStore{db: db}
}

// List returns tools ordered by slug.
func (s *ToolStore) List(ctx context.Context, f tool.Filter) ([]tool.Tool, error) {
	f = tool.NormalizeFilter(f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tools
		WHERE (? = '' OR category = ? COLLATE NOCASE)
		ORDER BY slug
		LIMIT ? OFFSET ?
	`, f.Category, f.Category, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	defer rows.Close()
	return scanTools(rows)
}

// Get retrieves a tool by slug.
func (s *ToolStore) Get(ctx context.Context, slug string) (tool.Tool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tools WHERE slug = ?`, slug).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return tool.Tool{}, ErrNotFound
	}
	if err != nil {
		return tool.Tool{}, fmt.Errorf("query tool: %w", err)
	}
	return decodeTool(data)
}

// GetMany retrieves tools by slug, preserving order.
func (s *ToolStore) GetMany(ctx context.Context, slugs []string) ([]tool.Tool, error) {
	result := make([]tool.Tool, 0, len(slugs))
	for _, slug := range slugs {
		t, err := s.Get(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// Upsert creates or replaces a tool.
func (s *ToolStore) Upsert(ctx context.Context, t tool.Tool) (bool, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return false, fmt.Errorf("encode tool: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tool upsert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools WHERE slug = ?`, t.Slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check tool: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tools (slug, category, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			category = excluded.category,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, t.Slug, t.Category, string(data), t.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("upsert tool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tool upsert: %w", err)
	}
	return exists == 0, nil
}

// Changelog returns a tool's changelog, newest first.
func (s *ToolStore) Changelog(ctx context.Context, slug string) ([]tool.ChangelogEntry, error) {
	if _, err := s.Get(ctx, slug); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, version, date, summary, changes
		FROM tool_changelog
		WHERE slug = ?
		ORDER BY id DESC
	`, slug)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	defer rows.Close()

	entries := []tool.ChangelogEntry{}
	for rows.Next() {
		var e tool.ChangelogEntry
		var changes string
		if err := rows.Scan(&e.Slug, &e.Version, &e.Date, &e.Summary, &changes); err != nil {
			return nil, fmt.Errorf("scan changelog: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("decode changelog changes: %w", err)
		}
		e.Date = e.Date.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendChangelog adds an entry to an existing tool's changelog.
func (s *ToolStore) AppendChangelog(ctx context.Context, e tool.ChangelogEntry) error {
	changes := e.Changes
	if changes == nil {
		changes = []string{}
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode changelog changes: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_changelog (slug, version, date, summary, changes)
		SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM tools WHERE slug = ?)
	`, e.Slug, e.Version, e.Date.UTC(), e.Summary, string(encoded), e.Slug)
	if err != nil {
		return fmt.Errorf("insert changelog: %w", err)
	}
	return requireRow(result)
}

func scanTools(rows *sql.Rows) ([]tool.Tool, error) {
	tools := []tool.Tool{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		t, err := decodeTool(data)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

func decodeTool(data string) (tool.Tool, error) {
	var t tool.Tool
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return tool.Tool{}, fmt.Errorf("decode tool: %w", err)
	}
	return t, nil
}

// Ensure interface compliance.
var _ ports.ToolStore = (*ToolStore)(nil)
