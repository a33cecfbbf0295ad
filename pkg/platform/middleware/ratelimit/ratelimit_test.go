package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"popai/pkg/requestcontext"
)

func TestLimiter_PerKeyBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(rate.Every(time.Minute), 2, WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"), "burst exhausted")
	assert.True(t, l.Allow("bob"), "other keys unaffected")

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("alice"), "one token refilled")
}

func TestLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(rate.Limit(1), 1, WithIdleTTL(time.Minute), WithClock(func() time.Time { return now }))

	l.Allow("alice")
	now = now.Add(30 * time.Second)
	l.Allow("bob")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 0, l.Cleanup())
}

func TestLimiter_Middleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(rate.Every(time.Hour), 1)
	h := l.Middleware(ByIdentity, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(identity string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/verification/challenges", nil)
		if identity != "" {
			req = req.WithContext(requestcontext.WithIdentity(req.Context(), "alice"))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusCreated, do(""), "anonymous requests bypass identity limiter")
}
