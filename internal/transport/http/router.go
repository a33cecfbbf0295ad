// Package httptransport assembles the HTTP surface: the shared middleware
// chain, the public and authenticated /v1 route groups, and the ops endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"popai/internal/platform/config"
	"popai/internal/platform/metrics"
	"popai/pkg/platform/httputil"
	"popai/pkg/platform/middleware/metadata"
	"popai/pkg/platform/middleware/request"
	"popai/pkg/platform/middleware/requesttime"
)

// Routes registers routes that require an authenticated caller.
type Routes interface {
	Register(r chi.Router)
}

// PublicRoutes registers routes open to anonymous callers.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps holds everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Server         config.Server
	Auth           func(http.Handler) http.Handler
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	HealthChecks   map[string]HealthCheck
	Public         []PublicRoutes
	Protected      []Routes
}

// NewRouter builds the application router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(deps.Logger))
	r.Use(deps.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", request.HeaderRequestID},
		ExposedHeaders:   []string{request.HeaderRequestID, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(deps.HealthChecks))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if deps.Server.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(deps.Server.RequestTimeout))
		}
		for _, p := range deps.Public {
			p.RegisterPublic(r)
		}
		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(deps.Auth)
			}
			for _, p := range deps.Protected {
				p.Register(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
