package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"popai/internal/credential/metrics"
	"popai/internal/credential/models"
	credentialstore "popai/internal/credential/store/memory"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/requestcontext"
)

type recordingNotifier struct {
	mu     sync.Mutex
	minted []domain.TokenID
	err    error
}

func (n *recordingNotifier) CredentialMinted(_ context.Context, c *models.Credential) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minted = append(n.minted, c.TokenID)
	return n.err
}

type CredentialServiceSuite struct {
	suite.Suite
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
	now      time.Time
}

func TestCredentialServiceSuite(t *testing.T) {
	suite.Run(t, new(CredentialServiceSuite))
}

func (s *CredentialServiceSuite) SetupTest() {
	s.notifier = &recordingNotifier{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	store := credentialstore.New(models.Template{TokenPrefix: "T", Name: "PoPAI Verified Human", Description: "desc"})
	s.service = New(store,
		WithNotifier(s.notifier),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *CredentialServiceSuite) TestMintOrGet() {
	c, minted, err := s.service.MintOrGet(s.ctx, "bob", "h1")
	s.Require().NoError(err)
	s.True(minted)
	s.Equal(domain.TokenID("T0"), c.TokenID)
	s.Equal(s.now, c.IssuedAt)

	again, minted, err := s.service.MintOrGet(s.ctx, "bob", "h2")
	s.Require().NoError(err)
	s.False(minted)
	s.Equal(c.TokenID, again.TokenID)

	s.Equal([]domain.TokenID{"T0"}, s.notifier.minted, "only new credentials are announced")
	s.InDelta(1, testutil.ToFloat64(s.metrics.Minted), 0)
	s.InDelta(1, testutil.ToFloat64(s.metrics.AlreadyHeld), 0)
}

func (s *CredentialServiceSuite) TestNotifierFailureDoesNotFailMint() {
	s.notifier.err = errors.New("sns throttled")

	c, minted, err := s.service.MintOrGet(s.ctx, "bob", "h1")
	s.Require().NoError(err)
	s.True(minted)
	s.Equal(domain.TokenID("T0"), c.TokenID)
	s.InDelta(1, testutil.ToFloat64(s.metrics.NotifyFailure), 0)
}

func (s *CredentialServiceSuite) TestMintRequiresIdentity() {
	_, _, err := s.service.MintOrGet(s.ctx, "", "h")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *CredentialServiceSuite) TestLookups() {
	_, _, err := s.service.MintOrGet(s.ctx, "bob", "h1")
	s.Require().NoError(err)

	got, err := s.service.Get(s.ctx, "T0")
	s.Require().NoError(err)
	s.Equal(domain.Identity("bob"), got.Owner)

	mine, err := s.service.GetByOwner(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(got, mine)

	_, err = s.service.Get(s.ctx, "T1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.GetByOwner(s.ctx, "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	n, err := s.service.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
