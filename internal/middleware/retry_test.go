package middleware_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexfrei/go-eero/internal/middleware"
	"github.com/lexfrei/go-eero/observability"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("success on first attempt", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  3,
			InitialWait: time.Millisecond,
		})(http.DefaultTransport)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("retry GET on 500 error", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
			} else {
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  3,
			InitialWait: time.Millisecond,
		})(http.DefaultTransport)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want %d", got, 3)
		}

		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("POST is never retried", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)

			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"code":"123456"}` {
				t.Errorf("body = %s, want %s", string(body), `{"code":"123456"}`)
			}

			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  3,
			InitialWait: time.Millisecond,
		})(http.DefaultTransport)

		req, _ := http.NewRequest(http.MethodPost, server.URL+"/2.2/eeros/123/reboot", strings.NewReader(`{"code":"123456"}`))
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want %d (no retry for POST)", got, 1)
		}

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
		}
	})

	t.Run("no retry on 404 error", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  3,
			InitialWait: time.Millisecond,
		})(http.DefaultTransport)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want %d (no retry on 4xx)", got, 1)
		}
	})

	t.Run("zero retries is a pass-through", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{})(http.DefaultTransport)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want %d", got, 1)
		}
	})

	t.Run("respect Retry-After header", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
			} else {
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  3,
			InitialWait: time.Hour, // Would normally wait 1 hour on first retry
		})(http.DefaultTransport)

		start := time.Now()
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := transport.RoundTrip(req)
		duration := time.Since(start)

		if err != nil {
			t.Fatalf("RoundTrip() error = %v", err)
		}
		defer resp.Body.Close()

		if duration > 2*time.Second {
			t.Errorf("duration = %v, want < 2s (should use Retry-After)", duration)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		transport := middleware.Retry(middleware.RetryConfig{
			MaxRetries:  10,
			InitialWait: time.Second,
		})(http.DefaultTransport)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := transport.RoundTrip(req)

		if err == nil {
			t.Fatal("expected error on context cancellation")
		}

		if !strings.Contains(err.Error(), "context") {
			t.Errorf("error = %v, want context-related error", err)
		}
	})
}

func TestRetryRecordsMetrics(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	metrics := &countingMetrics{}

	transport := middleware.Retry(middleware.RetryConfig{
		MaxRetries:  3,
		InitialWait: time.Millisecond,
		Logger:      observability.NoopLogger(),
		Metrics:     metrics,
	})(http.DefaultTransport)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/2.2/networks/42/devices", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if got := metrics.retries.Load(); got != 2 {
		t.Errorf("retries = %d, want %d", got, 2)
	}

	if got := metrics.lastEndpoint(); got != "/2.2/networks/:id/devices" {
		t.Errorf("endpoint = %q, want %q", got, "/2.2/networks/:id/devices")
	}
}
