// Package service implements the challenge registry: issuing challenges with
// fresh nonces and consuming each at most once.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"popai/internal/challenge/metrics"
	"popai/internal/challenge/models"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/sentinel"
	"popai/pkg/requestcontext"
)

// Store persists outstanding challenges. Consume must remove and return the
// challenge in one atomic step.
type Store interface {
	Save(ctx context.Context, c *models.Challenge) error
	Consume(ctx context.Context, id domain.ChallengeID, now time.Time) (*models.Challenge, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// NonceSource yields fresh fixed-length nonces.
type NonceSource interface {
	Nonce(ctx context.Context) ([]byte, error)
}

// PromptSelector picks the prompt for a new challenge.
type PromptSelector interface {
	Select(nonce []byte) models.PromptKind
}

// NonceSelector derives the prompt from the nonce.
type NonceSelector struct{}

func (NonceSelector) Select(nonce []byte) models.PromptKind { return models.PromptFromNonce(nonce) }

// RotatingSelector cycles through prompt kinds in order. Useful for demos
// and deterministic tests.
type RotatingSelector struct {
	next atomic.Uint64
}

func (r *RotatingSelector) Select([]byte) models.PromptKind {
	n := r.next.Add(1) - 1
	return models.PromptKinds[n%uint64(len(models.PromptKinds))]
}

const defaultTTL = 5 * time.Minute

// Service issues and consumes challenges.
type Service struct {
	store    Store
	nonces   NonceSource
	selector PromptSelector
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPromptSelector(sel PromptSelector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
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

func New(store Store, nonces NonceSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		nonces:   nonces,
		selector: NonceSelector{},
		ttl:      defaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates and stores a new challenge for identity. The nonce is fetched
// before anything is written, so a randomness failure leaves no trace.
func (s *Service) Issue(ctx context.Context, identity domain.Identity) (*models.Challenge, error) {
	if identity.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "identity is required")
	}

	nonce, err := s.nonces.Nonce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to obtain challenge nonce",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "randomness source unavailable")
	}

	id, err := domain.NewChallengeID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate challenge id")
	}

	kind := s.selector.Select(nonce)
	now := requestcontext.Now(ctx).UTC()
	c := &models.Challenge{
		ID:         id,
		PromptKind: kind,
		PromptText: kind.Text(),
		Nonce:      nonce,
		IssuedTo:   identity,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}

	if err := s.store.Save(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
	}
	s.metrics.IncIssued()
	s.logger.InfoContext(ctx, "challenge issued",
		"challenge_id", c.ID.String(),
		"prompt_kind", string(c.PromptKind),
		"identity", identity.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return c, nil
}

// Consume removes the challenge and returns it if it was issued to identity
// and has not expired. Missing, already consumed, expired and foreign
// challenges all yield an error wrapping sentinel.ErrNotFound; the challenge
// is gone in every case.
func (s *Service) Consume(ctx context.Context, identity domain.Identity, id domain.ChallengeID) (*models.Challenge, error) {
	c, err := s.store.Consume(ctx, id, requestcontext.Now(ctx))
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncConsumed("not_found")
		return nil, err
	case errors.Is(err, sentinel.ErrExpired):
		s.metrics.IncConsumed("expired")
		return nil, fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	default:
		s.metrics.IncConsumed("error")
		return nil, err
	}

	if !c.IssuedToIdentity(identity) {
		s.metrics.IncConsumed("wrong_identity")
		s.logger.WarnContext(ctx, "challenge submitted by a different identity",
			"challenge_id", id.String(),
			"identity", identity.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, fmt.Errorf("challenge issued to another identity: %w", sentinel.ErrNotFound)
	}

	s.metrics.IncConsumed("ok")
	return c, nil
}

// SweepExpired removes expired challenges.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, err
	}
	s.metrics.AddSwept(n)
	return n, nil
}

// RunSweeper sweeps expired challenges every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "challenge sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "expired challenges swept", "count", n)
			}
		}
	}
}
