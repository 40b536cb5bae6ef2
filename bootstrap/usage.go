package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/toolgate/adapters/metrics"
	"github.com/artpar/toolgate/domain/usage"
	"github.com/artpar/toolgate/ports"
	"github.com/rs/zerolog"
)

// UsageRecorderConfig configures an AsyncUsageRecorder.
type UsageRecorderConfig struct {
	QueueSize     int           // records held before Record starts dropping (default: 10000)
	BatchSize     int           // records per store write (default: 100)
	FlushInterval time.Duration // max age of a partial batch (default: 5s)
	WriteTimeout  time.Duration // per-batch store deadline (default: 5s)
	Logger        zerolog.Logger
	Metrics       *metrics.Collector // optional
}

// AsyncUsageRecorder queues usage records and writes them in batches from a
// single background goroutine. Record never blocks: when the queue is full
// the record is dropped and counted.
type AsyncUsageRecorder struct {
	store   ports.UsageStore
	cfg     UsageRecorderConfig
	logger  zerolog.Logger
	metrics *metrics.Collector

	queue     chan usage.Record
	flushReq  chan chan error
	stopCh    chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewAsyncUsageRecorder starts a recorder writing to store.
func NewAsyncUsageRecorder(store ports.UsageStore, cfg UsageRecorderConfig) *AsyncUsageRecorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &AsyncUsageRecorder{
		store:    store,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "usage").Logger(),
		metrics:  cfg.Metrics,
		queue:    make(chan usage.Record, cfg.QueueSize),
		flushReq: make(chan chan error),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go r.run()

	return r
}

// Record queues a usage record for storage.
func (r *AsyncUsageRecorder) Record(rec usage.Record) {
	if r.closed.Load() {
		r.drop(rec, "recorder closed")
		return
	}
	select {
	case r.queue <- rec:
		r.observeDepth()
	default:
		r.drop(rec, "usage queue full")
	}
}

// Flush writes everything queued so far.
func (r *AsyncUsageRecorder) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.flushReq <- reply:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records, writes what is queued and stops the
// background goroutine. The final write is bounded by WriteTimeout.
func (r *AsyncUsageRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.stopCh)
		<-r.done
	})
	return r.closeErr
}

// Pending returns the number of queued records.
func (r *AsyncUsageRecorder) Pending() int {
	return len(r.queue)
}

func (r *AsyncUsageRecorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]usage.Record, 0, r.cfg.BatchSize)

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				r.write(batch)
				batch = batch[:0]
			}
			r.observeDepth()

		case <-ticker.C:
			if len(batch) > 0 {
				r.write(batch)
				batch = batch[:0]
			}

		case reply := <-r.flushReq:
			batch = r.drain(batch)
			reply <- r.writeAll(batch)
			batch = batch[:0]

		case <-r.stopCh:
			batch = r.drain(batch)
			r.closeErr = r.writeAll(batch)
			return
		}
	}
}

// drain moves every queued record into batch.
func (r *AsyncUsageRecorder) drain(batch []usage.Record) []usage.Record {
	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
		default:
			r.observeDepth()
			return batch
		}
	}
}

// writeAll writes records in BatchSize chunks and returns the last error.
func (r *AsyncUsageRecorder) writeAll(records []usage.Record) error {
	var lastErr error
	for len(records) > 0 {
		n := min(len(records), r.cfg.BatchSize)
		if err := r.write(records[:n]); err != nil {
			lastErr = err
		}
		records = records[n:]
	}
	return lastErr
}

// write stores one batch. Failures are logged and counted; the records are
// not retried.
func (r *AsyncUsageRecorder) write(batch []usage.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.store.RecordBatch(ctx, batch); err != nil {
		r.logger.Error().Err(err).Int("records", len(batch)).Msg("failed to write usage batch")
		r.count("failed", len(batch))
		return err
	}
	r.count("written", len(batch))
	return nil
}

func (r *AsyncUsageRecorder) drop(rec usage.Record, reason string) {
	r.logger.Warn().
		Str("identity", rec.IdentityKey).
		Str("path", rec.Path).
		Msg(reason + ", dropping usage record")
	r.count("dropped", 1)
}

func (r *AsyncUsageRecorder) count(result string, n int) {
	if r.metrics != nil {
		r.metrics.UsageRecords.WithLabelValues(result).Add(float64(n))
	}
}

func (r *AsyncUsageRecorder) observeDepth() {
	if r.metrics != nil {
		r.metrics.UsageQueueDepth.Set(float64(len(r.queue)))
	}
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*AsyncUsageRecorder)(nil)
