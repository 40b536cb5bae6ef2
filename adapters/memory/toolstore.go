package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/toolgate/domain/tool"
	"github.com/artpar/toolgate/ports"
)

// ToolStore is an in-memory implementation of ports.ToolStore.
type ToolStore struct {
	mu        sync.RWMutex
	tools     map[string]tool.Tool
	changelog map[string][]tool.ChangelogEntry
}

// NewToolStore creates a tool store seeded with tools.
func NewToolStore(seed ...tool.Tool) *ToolStore {
	s := &ToolStore{
		tools:     make(map[string]tool.Tool, len(seed)),
		changelog: make(map[string][]tool.ChangelogEntry),
	}
	for _, t := range seed {
		s.tools[t.Slug] = t
	}
	return s
}

// List returns tools ordered by slug.
func (s *ToolStore) List(ctx context.Context, f tool.Filter) ([]tool.Tool, error) {
	f = tool.NormalizeFilter(f)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []tool.Tool
	for _, t := range s.tools {
		if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })

	if f.Offset >= len(all) {
		return []tool.Tool{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

// Get retrieves a tool by slug.
func (s *ToolStore) Get(ctx context.Context, slug string) (tool.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tools[slug]
	if !ok {
		return tool.Tool{}, ports.ErrNotFound
	}
	return t, nil
}

// GetMany retrieves tools by slug, preserving order.
func (s *ToolStore) GetMany(ctx context.Context, slugs []string) ([]tool.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]tool.Tool, 0, len(slugs))
	for _, slug := range slugs {
		if t, ok := s.tools[slug]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}

// Upsert creates or replaces a tool.
func (s *ToolStore) Upsert(ctx context.Context, t tool.Tool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.tools[t.Slug]
	s.tools[t.Slug] = t
	return !exists, nil
}

// Changelog returns a tool's changelog, newest first.
func (s *ToolStore) Changelog(ctx context.Context, slug string) ([]tool.ChangelogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tools[slug]; !ok {
		return nil, ports.ErrNotFound
	}
	entries := s.changelog[slug]
	result := make([]tool.ChangelogEntry, len(entries))
	for i, e := range entries {
		result[len(entries)-1-i] = e
	}
	return result, nil
}

// AppendChangelog adds an entry to an existing tool's changelog.
func (s *ToolStore) AppendChangelog(ctx context.Context, e tool.ChangelogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tools[e.Slug]; !ok {
		return ports.ErrNotFound
	}
	s.changelog[e.Slug] = append(s.changelog[e.Slug], e)
	return nil
}

// Ensure interface compliance.
var _ ports.ToolStore = (*ToolStore)(nil)
