package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/toolgate/domain/webhook"
	"github.com/artpar/toolgate/ports"
)

// WebhookStore is an in-memory implementation of ports.WebhookStore.
type WebhookStore struct {
	mu   sync.RWMutex
	regs map[string]webhook.Registration
}

// NewWebhookStore creates a new in-memory webhook store.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{regs: make(map[string]webhook.Registration)}
}

// Create stores a registration if the owner is below maxPerOwner.
func (s *WebhookStore) Create(ctx context.Context, r webhook.Registration, maxPerOwner int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regs[r.ID]; exists {
		return fmt.Errorf("webhook %s: %w", r.ID, ports.ErrConflict)
	}
	if maxPerOwner > 0 && s.countLocked(r.Owner) >= maxPerOwner {
		return fmt.Errorf("webhooks of %s: %w", r.Owner, ports.ErrLimitReached)
	}
	s.regs[r.ID] = r
	return nil
}

// Get retrieves a registration by ID.
func (s *WebhookStore) Get(ctx context.Context, id string) (webhook.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.regs[id]
	if !ok {
		return webhook.Registration{}, ports.ErrNotFound
	}
	return r, nil
}

// ListByOwner returns registrations of one tenant, oldest first.
func (s *WebhookStore) ListByOwner(ctx context.Context, owner string) ([]webhook.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []webhook.Registration
	for _, r := range s.regs {
		if r.Owner == owner {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CountByOwner returns the number of registrations of one tenant.
func (s *WebhookStore) CountByOwner(ctx context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(owner), nil
}

func (s *WebhookStore) countLocked(owner string) int {
	n := 0
	for _, r := range s.regs {
		if r.Owner == owner {
			n++
		}
	}
	return n
}

// Delete removes a registration.
func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.regs, id)
	return nil
}

// Ensure interface compliance.
var _ ports.WebhookStore = (*WebhookStore)(nil)
