package metrics

import (
	"context"
	"time"

	"github.com/artpar/toolgate/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// QuotaStore counts quota store failures per backend.
type QuotaStore struct {
	next    ports.QuotaStore
	backend string
	failed  prometheus.Counter
}

// InstrumentQuotaStore wraps next so every failed call increments
// quota_store_errors_total{backend}.
func InstrumentQuotaStore(next ports.QuotaStore, backend string, c *Collector) *QuotaStore {
	return &QuotaStore{
		next:    next,
		backend: backend,
		failed:  c.QuotaStoreErrors.WithLabelValues(backend),
	}
}

// Increment forwards to the wrapped store.
func (s *QuotaStore) Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error) {
	n, err := s.next.Increment(ctx, counterKey, expiresAt)
	if err != nil {
		s.failed.Inc()
	}
	return n, err
}

// Peek forwards to the wrapped store.
func (s *QuotaStore) Peek(ctx context.Context, counterKey string) (int64, error) {
	n, err := s.next.Peek(ctx, counterKey)
	if err != nil {
		s.failed.Inc()
	}
	return n, err
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
