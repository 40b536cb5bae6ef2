// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"
)

// Real returns the wall clock in UTC. Quota windows are derived from UTC
// truncation, so every instance must agree on the zone.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t.UTC()
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// NextDay moves the fake time to the following UTC midnight plus offset.
func (f *Fake) NextDay(offset time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	y, m, d := f.current.Date()
	f.current = time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC).Add(offset)
}
