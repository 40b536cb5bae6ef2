// Package hasher provides API key hashing implementations.
package hasher

import (
	"fmt"

	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the configured work factor.
func (h *Bcrypt) Cost() int { return h.cost }

// Hash generates a bcrypt hash of a raw key.
func (h *Bcrypt) Hash(raw string) ([]byte, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return b, nil
}

// Compare checks if raw matches hash.
func (h *Bcrypt) Compare(hash []byte, raw string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(raw)) == nil
}

// Ensure interface compliance.
var _ ports.Hasher = (*Bcrypt)(nil)

// Func adapts a Hasher to key.HashFunc for key generation.
func Func(h ports.Hasher) key.HashFunc {
	return h.Hash
}
