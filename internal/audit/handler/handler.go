package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"popai/internal/audit"
	dErrors "popai/pkg/domain-errors"
	"popai/pkg/platform/httputil"
	"popai/pkg/requestcontext"
)

// Service defines the audit reads exposed to auditors.
type Service interface {
	List(ctx context.Context, offset, limit int) (*audit.Page, error)
}

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// RegisterPublic registers the read-only audit trail.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/audit/entries", h.HandleList)
}

// HandleList returns a page of audit entries in append order.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	offset, err := queryInt(r, "offset")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
		return
	}

	page, err := h.service.List(ctx, offset, limit)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "audit list failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "audit list failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
