package liveness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"popai/internal/challenge/models"
	"popai/pkg/platform/circuit"
	"popai/pkg/platform/codec"
	"popai/pkg/platform/sentinel"
)

const (
	cborContentType  = "application/cbor"
	maxResponseBytes = 64 << 10
)

// inferenceRequest is the CBOR body sent to the inference service.
type inferenceRequest struct {
	ChallengeID string `cbor:"challenge_id"`
	PromptKind  string `cbor:"prompt_kind"`
	Nonce       []byte `cbor:"nonce"`
	Evidence    []byte `cbor:"evidence"`
}

type inferenceResponse struct {
	Live bool `cbor:"live"`
}

// RemoteVerifier delegates liveness inference to an HTTP service. Transport
// errors, non-200 responses and an open circuit all surface as
// sentinel.ErrUnavailable; none of them is ever a pass.
type RemoteVerifier struct {
	url       string
	client    *http.Client
	breaker   *circuit.Breaker
	modelHash string
	logger    *slog.Logger
}

// RemoteOption configures a RemoteVerifier.
type RemoteOption func(*RemoteVerifier)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(v *RemoteVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

func WithBreaker(b *circuit.Breaker) RemoteOption {
	return func(v *RemoteVerifier) {
		if b != nil {
			v.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) RemoteOption {
	return func(v *RemoteVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewRemoteVerifier(url, modelHash string, timeout time.Duration, opts ...RemoteOption) *RemoteVerifier {
	v := &RemoteVerifier{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		breaker:   circuit.New("liveness-remote"),
		modelHash: modelHash,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *RemoteVerifier) Evaluate(ctx context.Context, challenge *models.Challenge, evidence []byte) (bool, error) {
	if !v.breaker.Allow() {
		return false, fmt.Errorf("liveness service circuit open: %w", sentinel.ErrUnavailable)
	}
	live, err := v.call(ctx, challenge, evidence)
	if err != nil {
		// A caller that gave up says nothing about the service's health.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, fmt.Errorf("liveness call abandoned: %w", ctxErr)
		}
		if _, change := v.breaker.RecordFailure(); change.Opened {
			v.logger.WarnContext(ctx, "liveness service circuit opened", "breaker", v.breaker.Name(), "error", err)
		}
		return false, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if _, change := v.breaker.RecordSuccess(); change.Closed {
		v.logger.InfoContext(ctx, "liveness service circuit closed", "breaker", v.breaker.Name())
	}
	return live, nil
}

func (v *RemoteVerifier) call(ctx context.Context, challenge *models.Challenge, evidence []byte) (bool, error) {
	body, err := codec.Marshal(inferenceRequest{
		ChallengeID: challenge.ID.String(),
		PromptKind:  string(challenge.PromptKind),
		Nonce:       challenge.Nonce,
		Evidence:    evidence,
	})
	if err != nil {
		return false, fmt.Errorf("encode inference request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", cborContentType)
	req.Header.Set("Accept", cborContentType)

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return false, fmt.Errorf("inference service returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("read inference response: %w", err)
	}
	var out inferenceResponse
	if err := codec.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("decode inference response: %w", err)
	}
	return out.Live, nil
}

func (v *RemoteVerifier) ModelHash() string {
	return v.modelHash
}
