package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/ports"
	"github.com/rs/zerolog"
)

// DefaultStoreTimeout bounds every store call made on the request path.
const DefaultStoreTimeout = 2 * time.Second

// RateLimiter admits requests against per-tier fixed-window quotas.
// All coordination happens in the QuotaStore's atomic increment.
type RateLimiter struct {
	store   ports.QuotaStore
	clock   ports.Clock
	logger  zerolog.Logger
	timeout time.Duration

	failOpen atomic.Bool
}

// RateLimiterConfig contains configuration for RateLimiter.
type RateLimiterConfig struct {
	StoreTimeout time.Duration
	// FailOpen admits requests when the quota store is unavailable.
	FailOpen bool
}

// NewRateLimiter creates a rate limiter over store.
func NewRateLimiter(store ports.QuotaStore, clock ports.Clock, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	l := &RateLimiter{
		store:   store,
		clock:   clock,
		logger:  logger,
		timeout: cfg.StoreTimeout,
	}
	l.failOpen.Store(cfg.FailOpen)
	return l
}

// SetFailOpen switches the store-failure policy at runtime.
func (l *RateLimiter) SetFailOpen(v bool) {
	l.failOpen.Store(v)
}

// Admit counts one request for who and decides whether it may proceed.
// Denied attempts are counted too. A store failure is returned as an
// error unless fail-open is enabled, in which case a degraded admission
// is returned.
func (l *RateLimiter) Admit(ctx context.Context, who identity.Identity, p tier.Policy) (ratelimit.Decision, error) {
	now := l.clock.Now()

	// 1. Window and counter key (PURE)
	counterKey := ratelimit.CounterKey(who.Scope(), who.Key, p.Window, now)

	// 2. Atomic increment-and-read (I/O)
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	n, err := l.store.Increment(storeCtx, counterKey, p.Window.End(now))
	cancel()
	if err != nil {
		if !l.failOpen.Load() {
			return ratelimit.Decision{}, err
		}
		l.logger.Warn().Err(err).
			Str("counter", counterKey).
			Str("tier", string(p.Tier)).
			Msg("quota store unavailable, admitting request")
		return ratelimit.Decision{
			Allowed:  true,
			Limit:    p.Limit,
			ResetAt:  p.Window.End(now),
			Degraded: true,
		}, nil
	}

	// 3. Decide (PURE)
	return ratelimit.Decide(n, p.Limit, p.Window, now), nil
}

// Current reports the caller's standing in the current window without
// counting a request.
func (l *RateLimiter) Current(ctx context.Context, who identity.Identity, p tier.Policy) (ratelimit.Decision, error) {
	now := l.clock.Now()
	counterKey := ratelimit.CounterKey(who.Scope(), who.Key, p.Window, now)

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	n, err := l.store.Peek(storeCtx, counterKey)
	cancel()
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return ratelimit.Decide(n, p.Limit, p.Window, now), nil
}
