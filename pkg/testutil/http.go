// Package testutil provides request builders and response assertions shared by
// the handler suites.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request whose body is body marshaled to JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req on handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON asserts a JSON response with the given status and decodes it.
func DecodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder, status int) *T {
	t.Helper()
	require.Equal(t, status, rr.Code, "status (body: %s)", rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response")
	return &out
}

// ErrorEnvelope is the body written for every failed request.
type ErrorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// AssertError asserts status and the error code of the envelope, and returns
// the envelope for further checks on the description.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) *ErrorEnvelope {
	t.Helper()
	env := DecodeJSON[ErrorEnvelope](t, rr, status)
	assert.Equal(t, code, env.Error, "error code")
	return env
}
