// Package breaker wraps a remote QuotaStore in a circuit breaker so an
// unavailable backend fails fast instead of holding every request for the
// full store timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/toolgate/ports"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("quota store circuit open")

// Config configures the breaker.
type Config struct {
	Name string
	// MaxFailures consecutive failures trip the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests are allowed through while probing.
	HalfOpenRequests uint32
	// OnStateChange is called on every transition (for metrics).
	OnStateChange func(name, from, to string)
}

// QuotaStore decorates a ports.QuotaStore with a circuit breaker.
type QuotaStore struct {
	next ports.QuotaStore
	cb   *gobreaker.CircuitBreaker
}

// New wraps next.
func New(next ports.QuotaStore, cfg Config, logger zerolog.Logger) *QuotaStore {
	if cfg.Name == "" {
		cfg.Name = "quota"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("quota store circuit breaker state change")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	}

	return &QuotaStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Increment forwards to the wrapped store unless the breaker is open.
func (s *QuotaStore) Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Increment(ctx, counterKey, expiresAt)
	})
	if err != nil {
		return 0, translate(err)
	}
	return v.(int64), nil
}

// Peek forwards to the wrapped store unless the breaker is open.
func (s *QuotaStore) Peek(ctx context.Context, counterKey string) (int64, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Peek(ctx, counterKey)
	})
	if err != nil {
		return 0, translate(err)
	}
	return v.(int64), nil
}

// State returns the current breaker state name.
func (s *QuotaStore) State() string {
	return s.cb.State().String()
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return err
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
