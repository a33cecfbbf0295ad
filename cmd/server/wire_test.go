package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "popai/internal/jwt_token"
	"popai/internal/platform/config"
	"popai/pkg/testutil"
)

func TestBuild_InMemoryFlow(t *testing.T) {
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(a.close)

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	bearer, err := tokens.GenerateAccessToken("alice", time.Hour)
	require.NoError(t, err)

	call := func(t *testing.T, method, path string, body any, auth bool) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if auth {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rr := testutil.DoRequest(a.router, req)
		var out map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
		return rr, out
	}

	testutil.Given(t, "a service assembled from default configuration", func(t *testing.T) {
		testutil.When(t, "probing health", func(t *testing.T) {
			rr, out := call(t, http.MethodGet, "/healthz", nil, false)
			testutil.Then(t, "it reports ok", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "ok", out["status"])
			})
		})

		testutil.When(t, "requesting a challenge without a token", func(t *testing.T) {
			rr, _ := call(t, http.MethodPost, "/v1/verification/challenges", nil, false)
			testutil.Then(t, "it is rejected", func(t *testing.T) {
				assert.Equal(t, http.StatusUnauthorized, rr.Code)
			})
		})

		testutil.When(t, "an authenticated caller answers a challenge", func(t *testing.T) {
			rr, ch := call(t, http.MethodPost, "/v1/verification/challenges", nil, true)
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

			attestation, err := json.Marshal(map[string]any{"action": ch["prompt_kind"], "nonce": ch["nonce"]})
			require.NoError(t, err)
			rr, res := call(t, http.MethodPost, "/v1/verification/submissions", map[string]any{
				"challenge_id":        ch["challenge_id"],
				"liveness_evidence":   base64.StdEncoding.EncodeToString(attestation),
				"behavioral_evidence": json.RawMessage(`{"reaction_ms":420,"key_intervals_ms":[110,180,95,240,130,160]}`),
				"client_timestamp":    time.Now().UnixMilli(),
			}, true)

			testutil.Then(t, "the first credential is minted", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
				assert.Equal(t, true, res["success"])
				assert.Equal(t, "POP-0", res["credential_id"])
			})

			testutil.Then(t, "the credential is visible publicly and to its owner", func(t *testing.T) {
				rr, cred := call(t, http.MethodGet, "/v1/credentials/POP-0", nil, false)
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, res["verification_hash"], cred["verification_hash"])

				rr, mine := call(t, http.MethodGet, "/v1/credentials/me", nil, true)
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "POP-0", mine["token_id"])
			})

			testutil.Then(t, "a proof binds the verification hash", func(t *testing.T) {
				rr, proof := call(t, http.MethodPost, "/v1/proofs", map[string]any{"verification_hash": res["verification_hash"]}, true)
				require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
				pub, _ := proof["public_input"].(string)
				assert.True(t, strings.HasPrefix(pub, "verification_hash:"+res["verification_hash"].(string)+","))
			})

			testutil.Then(t, "the audit log records the verification", func(t *testing.T) {
				rr, page := call(t, http.MethodGet, "/v1/audit/entries", nil, false)
				require.Equal(t, http.StatusOK, rr.Code)
				assert.EqualValues(t, 1, page["total"])
			})
		})
	})
}

func TestBuild_RejectsUnreachableBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Challenge.Backend = config.BackendRedis
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := build(context.Background(), cfg, logger)
	assert.Error(t, err, "redis backend without a url cannot be assembled")
}
