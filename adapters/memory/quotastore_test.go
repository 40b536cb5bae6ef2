package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/toolgate/adapters/clock"
	"github.com/artpar/toolgate/adapters/memory"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestQuotaStore_Increment(t *testing.T) {
	clk := clock.NewFake(baseTime)
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{Clock: clk})
	defer store.Close()
	ctx := context.Background()
	expires := baseTime.Add(time.Hour)

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, "key:k1:2024-01-15", expires)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if got != want {
			t.Errorf("Increment() = %d, want %d", got, want)
		}
	}

	// Other keys are independent
	got, _ := store.Increment(ctx, "key:k2:2024-01-15", expires)
	if got != 1 {
		t.Errorf("independent key Increment() = %d, want 1", got)
	}

	if n, _ := store.Peek(ctx, "key:k1:2024-01-15"); n != 3 {
		t.Errorf("Peek() = %d, want 3", n)
	}
	if n, _ := store.Peek(ctx, "key:missing"); n != 0 {
		t.Errorf("Peek(missing) = %d, want 0", n)
	}
}

func TestQuotaStore_ExpiredCounterRestarts(t *testing.T) {
	clk := clock.NewFake(baseTime)
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{Clock: clk})
	defer store.Close()
	ctx := context.Background()

	store.Increment(ctx, "ip:1.2.3.4:w", baseTime.Add(time.Minute))
	store.Increment(ctx, "ip:1.2.3.4:w", baseTime.Add(time.Minute))

	clk.Advance(2 * time.Minute)
	if n, _ := store.Peek(ctx, "ip:1.2.3.4:w"); n != 0 {
		t.Errorf("Peek() after expiry = %d, want 0", n)
	}
	got, _ := store.Increment(ctx, "ip:1.2.3.4:w", clk.Now().Add(time.Minute))
	if got != 1 {
		t.Errorf("Increment() after expiry = %d, want 1", got)
	}
}

func TestQuotaStore_Cleanup(t *testing.T) {
	clk := clock.NewFake(baseTime)
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{Clock: clk, NumShards: 4})
	defer store.Close()
	ctx := context.Background()

	store.Increment(ctx, "a", baseTime.Add(time.Minute))
	store.Increment(ctx, "b", baseTime.Add(time.Hour))
	store.Increment(ctx, "c", baseTime.Add(time.Hour))

	clk.Advance(10 * time.Minute)
	if removed := store.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}

func TestQuotaStore_ConcurrentIncrementsAreDistinct(t *testing.T) {
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{})
	defer store.Close()
	ctx := context.Background()

	const n = 200
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := store.Increment(ctx, "key:hot", time.Now().Add(time.Hour))
			if err != nil {
				t.Errorf("Increment() error = %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, v := range results {
		if v < 1 || v > n || seen[v] {
			t.Fatalf("value %d out of range or duplicated", v)
		}
		seen[v] = true
	}
}

func TestQuotaStore_CanceledContext(t *testing.T) {
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{})
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Increment(ctx, "k", time.Now().Add(time.Hour)); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestQuotaStore_CloseTwice(t *testing.T) {
	store := memory.NewQuotaStore(memory.QuotaStoreConfig{})
	store.Close()
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
