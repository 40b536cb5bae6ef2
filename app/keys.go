package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/ports"
)

// KeyService issues and manages API keys. It backs both the admin API and
// the keys CLI commands.
type KeyService struct {
	keys      ports.KeyStore
	hasher    ports.Hasher
	clock     ports.Clock
	keyPrefix string
}

// NewKeyService creates a key service.
func NewKeyService(keys ports.KeyStore, hasher ports.Hasher, clock ports.Clock, keyPrefix string) *KeyService {
	if keyPrefix == "" {
		keyPrefix = key.DefaultPrefix
	}
	return &KeyService{keys: keys, hasher: hasher, clock: clock, keyPrefix: keyPrefix}
}

// KeyView is the public representation of a stored key. Hashes never
// leave the service.
type KeyView struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Name      string     `json:"name,omitempty"`
	Prefix    string     `json:"prefix"`
	Tier      tier.Tier  `json:"tier"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// IssuedKey is returned once at creation; RawKey is never stored.
type IssuedKey struct {
	KeyView
	RawKey string `json:"key"`
}

// ErrInvalidKeyParams marks caller errors from Create.
var ErrInvalidKeyParams = errors.New("invalid key parameters")

func (s *KeyService) view(k key.Key) KeyView {
	return KeyView{
		ID:        k.ID,
		Owner:     k.Owner,
		Name:      k.Name,
		Prefix:    k.Prefix,
		Tier:      k.Tier,
		Active:    k.Active(s.clock.Now()),
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
		RevokedAt: k.RevokedAt,
	}
}

// Create generates and stores a new key.
func (s *KeyService) Create(ctx context.Context, p key.CreateParams) (IssuedKey, error) {
	now := s.clock.Now()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return IssuedKey{}, fmt.Errorf("%w: expiresAt must be in the future", ErrInvalidKeyParams)
	}

	raw, k, err := key.Generate(s.keyPrefix, s.hasher.Hash, p, now)
	if err != nil {
		if p.Owner == "" || !p.Tier.Assignable() {
			return IssuedKey{}, fmt.Errorf("%w: %v", ErrInvalidKeyParams, err)
		}
		return IssuedKey{}, err
	}

	if err := s.keys.Create(ctx, k); err != nil {
		return IssuedKey{}, fmt.Errorf("store key: %w", err)
	}
	return IssuedKey{KeyView: s.view(k), RawKey: raw}, nil
}

// Get returns one key.
func (s *KeyService) Get(ctx context.Context, id string) (KeyView, error) {
	k, err := s.keys.Get(ctx, id)
	if err != nil {
		return KeyView{}, err
	}
	return s.view(k), nil
}

// List returns the keys of one owner, newest first.
func (s *KeyService) List(ctx context.Context, owner string) ([]KeyView, error) {
	keys, err := s.keys.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]KeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.view(k))
	}
	return out, nil
}

// Revoke revokes a key. Revoking twice keeps the first timestamp.
func (s *KeyService) Revoke(ctx context.Context, id string) error {
	return s.keys.Revoke(ctx, id, s.clock.Now())
}

// RevokeOwned revokes a key only if owner holds it. A key held by another
// tenant is reported as ports.ErrNotFound so its existence does not leak.
func (s *KeyService) RevokeOwned(ctx context.Context, owner, id string) error {
	k, err := s.keys.Get(ctx, id)
	if err != nil {
		return err
	}
	if k.Owner != owner {
		return ports.ErrNotFound
	}
	return s.keys.Revoke(ctx, id, s.clock.Now())
}

// SetTier moves a key to another tier.
func (s *KeyService) SetTier(ctx context.Context, id string, t tier.Tier) (KeyView, error) {
	if !t.Assignable() {
		return KeyView{}, fmt.Errorf("%w: tier %q cannot be assigned", ErrInvalidKeyParams, t)
	}
	if err := s.keys.SetTier(ctx, id, t); err != nil {
		return KeyView{}, err
	}
	return s.Get(ctx, id)
}
