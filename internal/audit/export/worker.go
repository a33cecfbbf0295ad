// Package export ships audit entries to Kafka for external auditors. The
// audit log enqueues after each append; a worker drains the buffer in
// batches behind a circuit breaker.
package export

import (
	"context"
	"log/slog"
	"time"

	"popai/internal/audit"
	"popai/internal/audit/metrics"
	"popai/pkg/platform/circuit"
)

// Publisher delivers a batch of entries.
type Publisher interface {
	Publish(ctx context.Context, entries []audit.Entry) error
}

// Worker drains a RingBuffer into a Publisher. A failed batch is held and
// retried on the next tick so entries leave the buffer in order.
type Worker struct {
	buffer    *RingBuffer
	publisher Publisher
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *metrics.Metrics

	interval  time.Duration
	batchSize int
	pending   []audit.Entry
}

type WorkerOption func(*Worker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) WorkerOption {
	return func(w *Worker) { w.breaker = b }
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(buffer *RingBuffer, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		buffer:    buffer,
		publisher: publisher,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = circuit.New("audit-export")
	}
	return w
}

// Enqueue implements audit.Exporter.
func (w *Worker) Enqueue(entry audit.Entry) {
	if w.buffer.Enqueue(entry) {
		w.metrics.IncExportDropped()
	}
	w.metrics.SetBacklog(w.buffer.Len())
}

// Run flushes every interval until ctx is done, then makes one last attempt
// with a short grace period.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.Flush(drainCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush publishes batches until the buffer is empty, a publish fails, or the
// circuit is open. It returns the number of entries published.
func (w *Worker) Flush(ctx context.Context) int {
	published := 0
	for {
		if len(w.pending) == 0 {
			w.pending = w.buffer.DequeueBatch(w.batchSize)
		}
		w.metrics.SetBacklog(w.buffer.Len() + len(w.pending))
		if len(w.pending) == 0 {
			return published
		}
		if !w.breaker.Allow() {
			return published
		}

		if err := w.publisher.Publish(ctx, w.pending); err != nil {
			w.metrics.IncExportFailure()
			_, change := w.breaker.RecordFailure()
			if change.Opened {
				w.metrics.SetBreakerOpen(true)
				w.logger.WarnContext(ctx, "audit export circuit opened", "breaker", w.breaker.Name())
			}
			w.logger.ErrorContext(ctx, "audit export failed",
				"error", err,
				"batch_size", len(w.pending),
			)
			return published
		}

		_, change := w.breaker.RecordSuccess()
		if change.Closed {
			w.metrics.SetBreakerOpen(false)
			w.logger.InfoContext(ctx, "audit export circuit closed", "breaker", w.breaker.Name())
		}
		w.metrics.AddExported(len(w.pending))
		published += len(w.pending)
		w.pending = nil
	}
}
