package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext drives the running service over HTTP and keeps per-scenario
// state. A fresh one is created for every scenario.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string

	client      *http.Client
	identity    string
	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
	saved       map[string]string
	challenge   map[string]any
}

// NewTestContext reads the target from the environment, defaulting to a
// local development server.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    envOr("POPAI_BASE_URL", "http://localhost:8080"),
		SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     envOr("JWT_ISSUER", "popai"),
		Audience:   envOr("JWT_AUDIENCE", "popai-api"),
		client:     &http.Client{Timeout: 10 * time.Second},
		saved:      map[string]string{},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetIdentity authenticates subsequent requests as identity. A run-unique
// suffix keeps scenarios independent against a shared server.
func (c *TestContext) SetIdentity(identity string) {
	c.identity = identity
}

func (c *TestContext) Identity() string { return c.identity }

func (c *TestContext) token() (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.identity,
		Issuer:    c.Issuer,
		Audience:  []string{c.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		ID:        fmt.Sprintf("e2e-%d", now.UnixNano()),
	}).SignedString([]byte(c.SigningKey))
}

func (c *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.identity != "" {
		tok, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.lastStatus = resp.StatusCode
	c.lastHeaders = resp.Header
	c.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (c *TestContext) POST(path string, body any) error { return c.do(http.MethodPost, path, body) }

func (c *TestContext) GET(path string) error { return c.do(http.MethodGet, path, nil) }

func (c *TestContext) GetLastResponseStatus() int { return c.lastStatus }

func (c *TestContext) GetLastResponseBody() []byte { return c.lastBody }

// GetResponseField returns a top-level field of the last JSON response.
func (c *TestContext) GetResponseField(field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(c.lastBody, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w (body: %s)", err, c.lastBody)
	}
	v, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, c.lastBody)
	}
	return v, nil
}

func (c *TestContext) Save(key, value string) { c.saved[key] = value }

func (c *TestContext) Saved(key string) string { return c.saved[key] }

func (c *TestContext) SetChallenge(ch map[string]any) { c.challenge = ch }

func (c *TestContext) Challenge() map[string]any { return c.challenge }
