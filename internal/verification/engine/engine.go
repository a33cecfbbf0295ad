// Package engine runs a challenge submission through consumption, capability
// scoring, hashing, auditing and credential minting.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	challengemodels "popai/internal/challenge/models"
	credentialmodels "popai/internal/credential/models"
	"popai/internal/verification/hash"
	"popai/internal/verification/metrics"
	"popai/internal/verification/models"
	"popai/internal/verification/policy"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/sentinel"
	"popai/pkg/requestcontext"
)

// Challenges consumes challenges exactly once.
type Challenges interface {
	Consume(ctx context.Context, identity domain.Identity, id domain.ChallengeID) (*challengemodels.Challenge, error)
}

// LivenessVerifier judges whether liveness evidence answers the challenge.
type LivenessVerifier interface {
	Evaluate(ctx context.Context, challenge *challengemodels.Challenge, evidence []byte) (bool, error)
	ModelHash() string
}

// BehavioralScorer rates behavioral evidence in [0,1].
type BehavioralScorer interface {
	Score(ctx context.Context, evidence json.RawMessage) (float64, error)
}

// Ledger mints or returns the caller's credential.
type Ledger interface {
	MintOrGet(ctx context.Context, identity domain.Identity, verificationHash string) (*credentialmodels.Credential, bool, error)
}

// AuditLog records verification hashes.
type AuditLog interface {
	Append(ctx context.Context, hash string) error
}

const tracerName = "popai/internal/verification/engine"

// Engine evaluates submissions. It holds no mutable state of its own; the
// challenge registry and ledger own the critical sections.
type Engine struct {
	challenges Challenges
	liveness   LivenessVerifier
	scorer     BehavioralScorer
	policy     policy.Policy
	ledger     Ledger
	audit      AuditLog
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

func WithPolicy(p policy.Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(challenges Challenges, liveness LivenessVerifier, scorer BehavioralScorer, ledger Ledger, audit AuditLog, opts ...Option) *Engine {
	e := &Engine{
		challenges: challenges,
		liveness:   liveness,
		scorer:     scorer,
		policy:     policy.NewThreshold(policy.DefaultThreshold),
		ledger:     ledger,
		audit:      audit,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelHash identifies the liveness model that backs decisions.
func (e *Engine) ModelHash() string {
	return e.liveness.ModelHash()
}

// Submit evaluates a submission from identity. Expected outcomes, including
// capability outages, are reported in the Result. An error is returned only
// when the outcome cannot be determined or persisted (hashing or ledger
// failure); it is never paired with a successful result.
func (e *Engine) Submit(ctx context.Context, identity domain.Identity, sub models.Submission) (*models.Result, error) {
	ctx, span := e.tracer.Start(ctx, "verification.Submit",
		trace.WithAttributes(attribute.String("challenge_id", sub.ChallengeID.String())),
	)
	defer span.End()

	requestID := requestcontext.RequestID(ctx)

	// Malformed evidence is rejected before the challenge is burned.
	digest, err := hash.EvidenceDigest(sub.LivenessEvidence, sub.BehavioralEvidence)
	if err != nil {
		span.SetStatus(codes.Error, "evidence digest")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "behavioral evidence is not valid JSON")
	}

	// The nil ID is never issued.
	if sub.ChallengeID.IsNil() {
		e.logger.InfoContext(ctx, "submission for unissued challenge id",
			"identity", identity.String(),
			"request_id", requestID,
		)
		return e.finish(span, models.Failed(models.ErrorInvalidOrExpiredChallenge, "")), nil
	}

	challenge, err := e.challenges.Consume(ctx, identity, sub.ChallengeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.logger.InfoContext(ctx, "submission for unknown or expired challenge",
				"challenge_id", sub.ChallengeID.String(),
				"identity", identity.String(),
				"request_id", requestID,
			)
			return e.finish(span, models.Failed(models.ErrorInvalidOrExpiredChallenge, "")), nil
		}
		e.logger.ErrorContext(ctx, "challenge registry unavailable",
			"challenge_id", sub.ChallengeID.String(),
			"error", err,
			"request_id", requestID,
		)
		span.RecordError(err)
		return e.finish(span, models.Failed(models.ErrorVerifierUnavailable, "")), nil
	}

	// The challenge is consumed from here on, whatever happens next.
	liveness, score, err := e.evaluate(ctx, challenge, sub)
	if err != nil {
		e.logger.WarnContext(ctx, "verifier capability unavailable",
			"challenge_id", challenge.ID.String(),
			"error", err,
			"request_id", requestID,
		)
		span.RecordError(err)
		return e.finish(span, models.Failed(models.ErrorVerifierUnavailable, "")), nil
	}

	passed := e.policy.Decide(liveness, score)
	span.SetAttributes(
		attribute.Bool("liveness", liveness),
		attribute.Float64("score", score),
		attribute.Bool("passed", passed),
	)

	verificationHash, err := hash.Verification(hash.Event{
		ChallengeID:     challenge.ID,
		Identity:        identity,
		ClientTimestamp: sub.ClientTimestamp,
		EvidenceDigest:  digest,
		Passed:          passed,
	})
	if err != nil {
		span.SetStatus(codes.Error, "verification hash")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute verification hash")
	}

	e.appendAudit(ctx, verificationHash)

	if !passed {
		e.logger.InfoContext(ctx, "verification failed",
			"challenge_id", challenge.ID.String(),
			"identity", identity.String(),
			"liveness", liveness,
			"score", score,
			"verification_hash", verificationHash,
			"request_id", requestID,
		)
		return e.finish(span, models.Failed(models.ErrorVerificationFailed, verificationHash)), nil
	}

	cred, minted, err := e.ledger.MintOrGet(ctx, identity, verificationHash)
	if err != nil {
		e.logger.ErrorContext(ctx, "credential ledger failure",
			"identity", identity.String(),
			"verification_hash", verificationHash,
			"error", err,
			"request_id", requestID,
		)
		span.SetStatus(codes.Error, "ledger")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "credential ledger unavailable")
	}

	e.logger.InfoContext(ctx, "verification passed",
		"challenge_id", challenge.ID.String(),
		"identity", identity.String(),
		"token_id", cred.TokenID.String(),
		"minted", minted,
		"verification_hash", verificationHash,
		"request_id", requestID,
	)
	return e.finish(span, models.Succeeded(cred.TokenID.String(), verificationHash, !minted)), nil
}

// evaluate runs both capability calls concurrently. Neither touches shared
// state.
func (e *Engine) evaluate(ctx context.Context, challenge *challengemodels.Challenge, sub models.Submission) (bool, float64, error) {
	var (
		liveness bool
		score    float64
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ctx, span := e.tracer.Start(gctx, "verification.Liveness")
		defer span.End()
		start := time.Now()
		ok, err := e.liveness.Evaluate(ctx, challenge, sub.LivenessEvidence)
		e.metrics.ObserveCapability("liveness", time.Since(start))
		if err != nil {
			e.metrics.IncCapabilityFailure("liveness")
			span.RecordError(err)
			return fmt.Errorf("liveness verifier: %w", err)
		}
		liveness = ok
		return nil
	})

	g.Go(func() error {
		ctx, span := e.tracer.Start(gctx, "verification.Behavioral")
		defer span.End()
		start := time.Now()
		s, err := e.scorer.Score(ctx, sub.BehavioralEvidence)
		e.metrics.ObserveCapability("behavioral", time.Since(start))
		if err != nil {
			e.metrics.IncCapabilityFailure("behavioral")
			span.RecordError(err)
			return fmt.Errorf("behavioral scorer: %w", err)
		}
		if math.IsNaN(s) || s < 0 || s > 1 {
			e.metrics.IncCapabilityFailure("behavioral")
			return fmt.Errorf("behavioral scorer returned %v outside [0,1]: %w", s, sentinel.ErrInvalidState)
		}
		e.metrics.ObserveScore(s)
		score = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return false, 0, err
	}
	return liveness, score, nil
}

// appendAudit records the hash. Failures are logged and counted only; the
// decision already reached stands.
func (e *Engine) appendAudit(ctx context.Context, verificationHash string) {
	if err := e.audit.Append(ctx, verificationHash); err != nil {
		e.metrics.IncAuditFailure()
		e.logger.ErrorContext(ctx, "audit append failed",
			"verification_hash", verificationHash,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (e *Engine) finish(span trace.Span, r *models.Result) *models.Result {
	outcome := string(r.ErrorKindOf())
	switch {
	case r.Success && r.AlreadyVerified:
		outcome = "already_verified"
	case r.Success:
		outcome = "minted"
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	e.metrics.IncSubmission(outcome)
	return r
}
