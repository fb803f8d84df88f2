// Package testutil provides mock eero servers and assertions shared by tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfrei/go-eero/apierror"
)

// SessionCookie is the cookie the service reads the token from.
const SessionCookie = "s"

// Envelope renders a successful reply carrying data, which must be raw JSON or empty.
func Envelope(code int, data string) string {
	if data == "" {
		return fmt.Sprintf(`{"meta":{"code":%d,"server_time":"2026-01-01T00:00:00Z"}}`, code)
	}
	return fmt.Sprintf(`{"meta":{"code":%d,"server_time":"2026-01-01T00:00:00Z"},"data":%s}`, code, data)
}

// ErrorEnvelope renders a failure reply with the given metadata code and remote error text.
func ErrorEnvelope(code int, errText string) string {
	return fmt.Sprintf(`{"meta":{"code":%d,"error":%q,"server_time":"2026-01-01T00:00:00Z"}}`, code, errText)
}

// WriteJSON writes body with the given status.
func WriteJSON(t *testing.T, w http.ResponseWriter, statusCode int, body string) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(body))
	assert.NoError(t, err, "Failed to write response body")
}

// Request is what a mock server saw.
type Request struct {
	Method string
	Path   string
	Cookie string
	Body   string
}

// Server is an httptest.Server that records every request it receives.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
}

// Requests returns the recorded requests in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns the number of requests received.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// record stores r and returns it with a fresh body, plus its 1-based arrival index.
func (s *Server) record(r *http.Request) (*http.Request, int) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	rec := Request{Method: r.Method, Path: r.URL.Path, Body: string(body)}
	if c, err := r.Cookie(SessionCookie); err == nil {
		rec.Cookie = c.Value
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	n := len(s.requests)
	s.mu.Unlock()

	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return r, n
}

// NewMockServer creates a test HTTP server with a predefined response.
// It validates the request path and, when token is set, the session cookie.
func NewMockServer(t *testing.T, expectedPath, token, responseBody string, statusCode int) *Server {
	t.Helper()

	srv := &Server{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, _ = srv.record(r)

		assert.Equal(t, expectedPath, r.URL.Path, "Request path should match expected")

		if token != "" {
			c, err := r.Cookie(SessionCookie)
			if assert.NoError(t, err, "session cookie should be set") {
				assert.Equal(t, token, c.Value, "session cookie should carry the token")
			}
		}

		WriteJSON(t, w, statusCode, responseBody)
	}))
	t.Cleanup(srv.Close)

	return srv
}

// NewMockServerMulti creates a test HTTP server with multiple path handlers.
// Keys are "METHOD /path" or a bare "/path" matching any method.
func NewMockServerMulti(t *testing.T, handlers map[string]http.HandlerFunc) *Server {
	t.Helper()

	srv := &Server{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, _ = srv.record(r)

		handler, ok := handlers[r.Method+" "+r.URL.Path]
		if !ok {
			handler, ok = handlers[r.URL.Path]
		}
		if !ok {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			WriteJSON(t, w, http.StatusNotFound, ErrorEnvelope(http.StatusNotFound, "error.generic.not_found"))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv
}

// Reply is one canned response of a sequence.
type Reply struct {
	Body       string
	StatusCode int
}

// NewMockServerSequence creates a test server that returns responses in sequence.
func NewMockServerSequence(t *testing.T, responses []Reply) *Server {
	t.Helper()

	srv := &Server{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, n := srv.record(r)

		if n > len(responses) {
			t.Errorf("More requests than configured responses (got %d requests, have %d responses)",
				n, len(responses))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := responses[n-1]
		WriteJSON(t, w, resp.StatusCode, resp.Body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

// RequireKind checks that err is non-nil and carries kind as its primary kind.
func RequireKind(t *testing.T, err error, kind apierror.Kind, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	require.Equal(t, kind.String(), apierror.KindOf(err).String(), "unexpected kind for error: %v", err)
}
