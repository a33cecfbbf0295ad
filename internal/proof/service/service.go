// Package service generates proofs over verification hashes.
package service

import (
	"context"
	"log/slog"

	"popai/internal/proof/models"
	"popai/internal/verification/hash"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/requestcontext"
)

// Generator produces a proof for the given public inputs.
type Generator interface {
	Generate(ctx context.Context, in models.Inputs) (*models.Proof, error)
}

// ModelSource reports the hash of the liveness model in use.
type ModelSource interface {
	ModelHash() string
}

type Service struct {
	generator Generator
	model     ModelSource
	logger    *slog.Logger
}

func New(generator Generator, model ModelSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, model: model, logger: logger}
}

// Generate returns a proof binding verificationHash to the current model
// hash. No lock is held across the generator call.
func (s *Service) Generate(ctx context.Context, verificationHash string) (*models.Proof, error) {
	if !hash.IsValid(verificationHash) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification_hash must be 64 lowercase hex characters")
	}
	in := models.Inputs{VerificationHash: verificationHash, ModelHash: s.model.ModelHash()}
	p, err := s.generator.Generate(ctx, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "proof generation failed",
			"verification_hash", verificationHash,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "proof generator unavailable")
	}
	return p, nil
}
