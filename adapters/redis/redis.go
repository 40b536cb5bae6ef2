// Package redis provides a Redis implementation of ports.QuotaStore for
// deployments where several gateway instances share one quota.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/toolgate/ports"
	goredis "github.com/redis/go-redis/v9"
)

// incrementScript increments a counter and pins its expiry on first use.
// KEYS[1] = counter key
// ARGV[1] = expiry as unix seconds
var incrementScript = goredis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIREAT', KEYS[1], ARGV[1])
	end
	return current
`)

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string // prepended to every counter key
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Prefix:       "toolgate:quota:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// QuotaStore implements ports.QuotaStore on Redis.
type QuotaStore struct {
	client goredis.UniversalClient
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*QuotaStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client goredis.UniversalClient, prefix string) *QuotaStore {
	return &QuotaStore{client: client, prefix: prefix}
}

// Increment atomically adds one to a counter and returns the new value.
// The expiry is set only when the counter is created, so concurrent
// increments cannot extend a window.
func (s *QuotaStore) Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := incrementScript.Run(ctx, s.client, []string{s.prefix + counterKey}, expiresAt.Unix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return n, nil
}

// Peek returns the current value of a counter.
func (s *QuotaStore) Peek(ctx context.Context, counterKey string) (int64, error) {
	n, err := s.client.Get(ctx, s.prefix+counterKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *QuotaStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *QuotaStore) Close() error {
	return s.client.Close()
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
