package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/toolgate/ports"
)

type counter struct {
	count     int64
	expiresAt time.Time
}

// quotaShard is a single shard of the quota store.
type quotaShard struct {
	mu       sync.Mutex
	counters map[string]counter
}

// QuotaStore is a sharded in-memory implementation of ports.QuotaStore.
// Uses sharding to reduce lock contention for high throughput. Counters are
// only shared within one process; use the sqlite or redis store when more
// than one gateway instance serves traffic.
type QuotaStore struct {
	shards    []*quotaShard
	numShards int
	clock     ports.Clock
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// QuotaStoreConfig configures the quota store.
type QuotaStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop expired counters (default: 5m)
	Clock           ports.Clock   // Optional: defaults to wall clock
}

// NewQuotaStore creates a new sharded in-memory quota store.
func NewQuotaStore(cfg QuotaStoreConfig) *QuotaStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}

	s := &QuotaStore{
		shards:    make([]*quotaShard, cfg.NumShards),
		numShards: cfg.NumShards,
		clock:     cfg.Clock,
		done:      make(chan struct{}),
	}

	for i := range s.shards {
		s.shards[i] = &quotaShard{
			counters: make(map[string]counter),
		}
	}

	// Start background cleanup
	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for a given key using consistent hashing.
func (s *QuotaStore) getShard(key string) *quotaShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Increment atomically adds one to a counter and returns the new value.
// An expired counter restarts at 1.
func (s *QuotaStore) Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	shard := s.getShard(counterKey)
	now := s.clock.Now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	c, ok := shard.counters[counterKey]
	if !ok || (!c.expiresAt.IsZero() && now.After(c.expiresAt)) {
		c = counter{expiresAt: expiresAt}
	}
	c.count++
	shard.counters[counterKey] = c
	return c.count, nil
}

// Peek returns the current value of a counter.
func (s *QuotaStore) Peek(ctx context.Context, counterKey string) (int64, error) {
	shard := s.getShard(counterKey)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	c, ok := shard.counters[counterKey]
	if !ok || (!c.expiresAt.IsZero() && s.clock.Now().After(c.expiresAt)) {
		return 0, nil
	}
	return c.count, nil
}

// cleanupLoop periodically removes expired counters.
func (s *QuotaStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.Cleanup()
		case <-s.done:
			return
		}
	}
}

// Cleanup removes counters whose window has ended. Returns the number removed.
func (s *QuotaStore) Cleanup() int {
	now := s.clock.Now()
	removed := 0

	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, c := range shard.counters {
			if !c.expiresAt.IsZero() && now.After(c.expiresAt) {
				delete(shard.counters, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Close stops the cleanup goroutine.
func (s *QuotaStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Len returns the total number of counters across all shards (for testing).
func (s *QuotaStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.counters)
		shard.mu.Unlock()
	}
	return total
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
