package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"popai/internal/audit"
	"popai/internal/audit/metrics"
	"popai/pkg/platform/circuit"
)

type fakePublisher struct {
	batches [][]audit.Entry
	fail    bool
}

func (p *fakePublisher) Publish(_ context.Context, entries []audit.Entry) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, append([]audit.Entry{}, entries...))
	return nil
}

type WorkerSuite struct {
	suite.Suite
	pub     *fakePublisher
	buf     *RingBuffer
	metrics *metrics.Metrics
	now     time.Time
	worker  *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.pub = &fakePublisher{}
	s.buf = NewRingBuffer(16)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("audit-export",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.worker = NewWorker(s.buf, s.pub,
		WithBatchSize(2),
		WithBreaker(breaker),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *WorkerSuite) TestFlushInBatches() {
	for i := range 5 {
		s.worker.Enqueue(entry(i))
	}

	s.Equal(5, s.worker.Flush(context.Background()))
	s.Require().Len(s.pub.batches, 3)
	s.Equal([]audit.Entry{entry(0), entry(1)}, s.pub.batches[0])
	s.Equal([]audit.Entry{entry(4)}, s.pub.batches[2])
	s.Equal(5.0, testutil.ToFloat64(s.metrics.Exported))
	s.Zero(testutil.ToFloat64(s.metrics.ExportBacklog))
}

func (s *WorkerSuite) TestFailedBatchIsRetriedInOrder() {
	s.worker.Enqueue(entry(0))
	s.worker.Enqueue(entry(1))
	s.worker.Enqueue(entry(2))

	s.pub.fail = true
	s.Zero(s.worker.Flush(context.Background()))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ExportFailures))

	s.pub.fail = false
	s.Equal(3, s.worker.Flush(context.Background()))
	s.Equal([]audit.Entry{entry(0), entry(1)}, s.pub.batches[0])
	s.Equal([]audit.Entry{entry(2)}, s.pub.batches[1])
}

func (s *WorkerSuite) TestOpenCircuitSkipsPublish() {
	s.worker.Enqueue(entry(0))
	s.pub.fail = true
	s.worker.Flush(context.Background())
	s.worker.Flush(context.Background())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerOpen))

	s.pub.fail = false
	s.Zero(s.worker.Flush(context.Background()), "circuit open during cooldown")
	s.Empty(s.pub.batches)

	s.now = s.now.Add(time.Minute)
	s.Equal(1, s.worker.Flush(context.Background()))
	s.Zero(testutil.ToFloat64(s.metrics.BreakerOpen))
}

func (s *WorkerSuite) TestEnqueueCountsDrops() {
	small := NewWorker(NewRingBuffer(1), s.pub, WithMetrics(s.metrics))
	small.Enqueue(entry(0))
	small.Enqueue(entry(1))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ExportDropped))
}

func (s *WorkerSuite) TestRunDrainsOnShutdown() {
	s.worker.Enqueue(entry(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.worker.Run(ctx), context.Canceled)
	s.Len(s.pub.batches, 1)
}
