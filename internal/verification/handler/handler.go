package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"popai/internal/verification/models"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/httputil"
	"popai/pkg/requestcontext"
)

// Service defines the verification operation the handler needs.
type Service interface {
	Submit(ctx context.Context, identity domain.Identity, sub models.Submission) (*models.Result, error)
}

// Handler serves challenge submissions.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register registers the submission route. The router must already enforce
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verification/submissions", h.HandleSubmit)
}

// HandleSubmit evaluates a challenge submission. Expected outcomes are 200
// with success=false; verifier_unavailable is 503 with the same body.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
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

	req, ok := httputil.DecodeAndPrepare[models.SubmissionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Submit(ctx, identity, req.ToSubmission())
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeInvalidInput), dErrors.HasCode(err, dErrors.CodeUnavailable):
			h.logger.WarnContext(ctx, "submission not evaluated", "request_id", requestID, "error", err)
			httputil.WriteError(w, err)
		default:
			h.logger.ErrorContext(ctx, "submission failed", "request_id", requestID, "error", err)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "submission failed"))
		}
		return
	}

	status := http.StatusOK
	if res.ErrorKindOf() == models.ErrorVerifierUnavailable {
		w.Header().Set("Retry-After", "5")
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, res)
}
