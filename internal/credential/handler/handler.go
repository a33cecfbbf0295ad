package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"popai/internal/credential/models"
	"popai/pkg/domain"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/httputil"
	"popai/pkg/requestcontext"
)

// Service defines the ledger reads the handler needs.
type Service interface {
	Get(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
	GetByOwner(ctx context.Context, identity domain.Identity) (*models.Credential, error)
}

// Handler serves credential lookups.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// RegisterPublic registers lookups that need no authentication.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/credentials/{tokenID}", h.HandleGet)
}

// Register registers routes for authenticated callers.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/me", h.HandleGetMine)
}

// HandleGet returns the credential with the given token ID.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		// No credential can carry a malformed ID.
		h.logger.InfoContext(ctx, "malformed token id", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}

	c, err := h.service.Get(ctx, tokenID)
	if err != nil {
		h.writeLookupError(ctx, w, err, requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(c))
}

// HandleGetMine returns the authenticated caller's credential.
func (h *Handler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.service.GetByOwner(ctx, identity)
	if err != nil {
		h.writeLookupError(ctx, w, err, requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(c))
}

func (h *Handler) writeLookupError(ctx context.Context, w http.ResponseWriter, err error, requestID string) {
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, "credential lookup failed", "request_id", requestID, "error", err)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "credential lookup failed"))
}
