package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"popai/internal/challenge/models"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/httputil"
	"popai/pkg/requestcontext"
)

// Service defines the challenge operations the handler needs.
type Service interface {
	Issue(ctx context.Context, identity domain.Identity) (*models.Challenge, error)
}

// Handler serves challenge issuance.
type Handler struct {
	logger  *slog.Logger
	service Service
	issue   []func(http.Handler) http.Handler
}

// New creates a challenge Handler. Extra middleware (rate limiting) wraps the
// issue route only.
func New(service Service, logger *slog.Logger, issueMiddleware ...func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		issue:   issueMiddleware,
	}
}

// Register registers the challenge routes. The router must already enforce
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.With(h.issue...).Post("/verification/challenges", h.HandleIssue)
}

// HandleIssue issues a fresh challenge to the authenticated caller.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	identity := requestcontext.Identity(ctx)
	if identity.IsNil() {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	c, err := h.service.Issue(ctx, identity)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			h.logger.WarnContext(ctx, "challenge issuance unavailable",
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to issue challenge",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue challenge"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.ToResponse(c))
}
