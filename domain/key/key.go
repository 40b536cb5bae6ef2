// Package key provides API key value types and pure validation functions.
package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/artpar/toolgate/domain/tier"
)

// DefaultPrefix is prepended to every issued key.
const DefaultPrefix = "tk_"

// LookupLen is the number of leading characters stored in clear for lookup.
const LookupLen = 12

// Key represents an API key (immutable value type).
type Key struct {
	ID        string
	Owner     string // tenant that owns the key
	Name      string
	Prefix    string // First LookupLen chars for lookup
	Hash      []byte // bcrypt hash of the full key
	Tier      tier.Tier
	ExpiresAt *time.Time // nil = never expires
	RevokedAt *time.Time // nil = not revoked
	CreatedAt time.Time
}

// ValidationResult represents the outcome of key validation (value type).
type ValidationResult struct {
	Valid  bool
	Key    Key    // Populated only if Valid=true
	Reason string // Populated only if Valid=false
}

// CreateParams contains parameters for issuing a new key.
type CreateParams struct {
	Owner     string
	Name      string
	Tier      tier.Tier
	ExpiresAt *time.Time
}

// Reasons for validation failure.
const (
	ReasonValid     = ""
	ReasonNotFound  = "key_not_found"
	ReasonExpired   = "key_expired"
	ReasonRevoked   = "key_revoked"
	ReasonBadFormat = "invalid_format"
)

// HashFunc hashes a raw key for storage.
type HashFunc func(raw string) ([]byte, error)

// Generate creates a new API key with the given prefix.
// Returns the raw key (to give to the owner once) and the Key to store.
// The raw key is: prefix + 64 hex chars.
func Generate(prefix string, hash HashFunc, p CreateParams, now time.Time) (rawKey string, k Key, err error) {
	if !p.Tier.Assignable() {
		return "", Key{}, fmt.Errorf("tier %q cannot be assigned to a key", p.Tier)
	}
	if p.Owner == "" {
		return "", Key{}, fmt.Errorf("owner is required")
	}

	// Generate 32 random bytes = 64 hex chars
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", Key{}, fmt.Errorf("generate key: %w", err)
	}
	rawKey = prefix + hex.EncodeToString(randomBytes)

	h, err := hash(rawKey)
	if err != nil {
		return "", Key{}, fmt.Errorf("hash key: %w", err)
	}

	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", Key{}, fmt.Errorf("generate key id: %w", err)
	}

	k = Key{
		ID:        "key_" + hex.EncodeToString(idBytes),
		Owner:     p.Owner,
		Name:      p.Name,
		Prefix:    rawKey[:LookupLen],
		Hash:      h,
		Tier:      p.Tier,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: now.UTC(),
	}
	return rawKey, k, nil
}

// WithTier returns a copy of the key with the Tier set.
func (k Key) WithTier(t tier.Tier) Key {
	k.Tier = t
	return k
}

// Active reports whether the key is neither revoked nor expired at now.
func (k Key) Active(now time.Time) bool {
	return Validate(k, now).Valid
}
