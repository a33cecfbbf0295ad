// Package service implements the credential ledger operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"popai/internal/credential/metrics"
	"popai/internal/credential/models"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/sentinel"
	"popai/pkg/requestcontext"
)

// Store persists credentials. MintOrGet must perform the owner check, the
// sequence allocation and the insert as one atomic step.
type Store interface {
	MintOrGet(ctx context.Context, owner domain.Identity, verificationHash string, issuedAt time.Time) (*models.Credential, bool, error)
	FindByTokenID(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
	FindByOwner(ctx context.Context, owner domain.Identity) (*models.Credential, error)
	Count(ctx context.Context) (int, error)
}

// Notifier is told about newly minted credentials.
type Notifier interface {
	CredentialMinted(ctx context.Context, c *models.Credential) error
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MintOrGet returns identity's credential, minting it if needed. The
// notification for a new credential is sent after the store call returns.
func (s *Service) MintOrGet(ctx context.Context, identity domain.Identity, verificationHash string) (*models.Credential, bool, error) {
	if identity.IsNil() {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "identity is required")
	}
	c, minted, err := s.store.MintOrGet(ctx, identity, verificationHash, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, false, err
	}
	if !minted {
		s.metrics.IncAlreadyHeld()
		return c, false, nil
	}

	s.metrics.IncMinted()
	s.logger.InfoContext(ctx, "credential minted",
		"token_id", c.TokenID.String(),
		"sequence", c.Sequence,
		"identity", identity.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.notifier != nil {
		if err := s.notifier.CredentialMinted(ctx, c); err != nil {
			s.metrics.IncNotifyFailure()
			s.logger.WarnContext(ctx, "mint notification failed",
				"token_id", c.TokenID.String(),
				"error", err,
			)
		}
	}
	return c, true, nil
}

// Get looks up a credential by token ID.
func (s *Service) Get(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	c, err := s.store.FindByTokenID(ctx, tokenID)
	if err != nil {
		return nil, translate(err, "credential not found")
	}
	return c, nil
}

// GetByOwner returns identity's credential.
func (s *Service) GetByOwner(ctx context.Context, identity domain.Identity) (*models.Credential, error) {
	c, err := s.store.FindByOwner(ctx, identity)
	if err != nil {
		return nil, translate(err, "no credential for this identity")
	}
	return c, nil
}

// Count returns the number of credentials in the ledger.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count credentials")
	}
	return n, nil
}

func translate(err error, notFoundMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
}
