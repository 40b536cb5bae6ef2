// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/artpar/toolgate/ports"
	"github.com/google/uuid"
)

// UUID generates prefixed UUID v4 identifiers such as "wh_3f2a...".
// The dashes are removed so IDs are safe in URL paths and log fields.
type UUID struct {
	Prefix string
}

// New generates a new identifier.
func (g UUID) New() string {
	return g.Prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)
