package testutil

import (
	"context"
	"net/http"

	"popai/pkg/domain"
	"popai/pkg/requestcontext"
)

// WithIdentity adds an authenticated identity to the request context, as the
// auth middleware would. Invalid identities are not added.
func WithIdentity(req *http.Request, identity string) *http.Request {
	parsed, err := domain.ParseIdentity(identity)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithIdentity(req.Context(), parsed))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
