// Package random provides ports.Random implementations.
package random

import (
	"crypto/rand"
	"sync"
)

// Secure reads from crypto/rand.
type Secure struct{}

// Bytes returns n cryptographically secure random bytes.
func (Secure) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Sequence yields deterministic bytes for tests. Each call starts one
// past the previous call's first byte, so successive secrets differ.
type Sequence struct {
	mu   sync.Mutex
	next byte
	err  error
}

// NewSequence creates a Sequence starting at seed.
func NewSequence(seed byte) *Sequence {
	return &Sequence{next: seed}
}

// Fail makes every later call return err.
func (s *Sequence) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Bytes returns n bytes counting up from the current position.
func (s *Sequence) Bytes(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = s.next + byte(i)
	}
	s.next++
	return b, nil
}
