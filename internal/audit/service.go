// Package audit records verification hashes in an append-only trail for
// external auditors. Nothing in the decision path reads it back.
package audit

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"popai/internal/audit/metrics"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/requestcontext"
)

// Store persists entries. Append assigns the sequence number and returns
// the stored entry.
type Store interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, offset, limit int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
}

// Exporter receives entries after they are stored. Enqueue must not block.
type Exporter interface {
	Enqueue(entry Entry)
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Service is the audit log.
type Service struct {
	store    Store
	exporter Exporter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	entropyMu sync.Mutex
	entropy   io.Reader
}

type Option func(*Service)

func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  slog.Default(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records hash. Append order is preserved by the store.
func (s *Service) Append(ctx context.Context, hash string) error {
	now := requestcontext.Now(ctx).UTC()
	id, err := s.newID(now)
	if err != nil {
		s.metrics.IncAppendFailure()
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate audit entry id")
	}

	stored, err := s.store.Append(ctx, Entry{ID: id, Hash: hash, RecordedAt: now})
	if err != nil {
		s.metrics.IncAppendFailure()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable")
	}
	s.metrics.IncAppended()
	s.logger.DebugContext(ctx, "audit entry appended",
		"audit_id", stored.ID,
		"sequence", stored.Sequence,
		"hash", stored.Hash,
	)
	if s.exporter != nil {
		s.exporter.Enqueue(stored)
	}
	return nil
}

// newID returns a ULID. The monotonic reader is not safe for concurrent use.
func (s *Service) newID(now time.Time) (string, error) {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// List returns a page of the trail in append order.
func (s *Service) List(ctx context.Context, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	total, err := s.store.Len(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	entries, err := s.store.List(ctx, offset, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Page{Entries: entries, Offset: offset, Total: total}, nil
}

// Len returns the number of entries.
func (s *Service) Len(ctx context.Context) (int, error) {
	n, err := s.store.Len(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return n, nil
}
