package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"popai/internal/proof/models"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/httputil"
	"popai/pkg/requestcontext"
)

// Service defines the proof operation the handler needs.
type Service interface {
	Generate(ctx context.Context, verificationHash string) (*models.Proof, error)
}

// Handler serves proof generation.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/proofs", h.HandleGenerate)
}

// HandleGenerate returns a proof over the requested verification hash.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.GenerateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.Generate(ctx, req.VerificationHash)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) || dErrors.HasCode(err, dErrors.CodeUnavailable) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "proof generation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "proof generation failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
