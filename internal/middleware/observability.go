package middleware

import (
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/lexfrei/go-eero/observability"
)

// Observability returns a middleware that logs and records metrics for HTTP requests.
// Failures below HTTP are recorded as "NetworkError"; classification of HTTP-level
// failures happens later, in the transport.
func Observability(logger observability.Logger, metrics observability.MetricsRecorder) func(http.RoundTripper) http.RoundTripper {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	if metrics == nil {
		metrics = observability.NoopMetricsRecorder()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &observabilityTransport{
			next:    next,
			logger:  logger,
			metrics: metrics,
		}
	}
}

type observabilityTransport struct {
	next    http.RoundTripper
	logger  observability.Logger
	metrics observability.MetricsRecorder
}

func (t *observabilityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	path := normalizePath(req.URL.Path)

	t.logger.Debug("http request started",
		observability.Field{Key: "method", Value: req.Method},
		observability.Field{Key: "path", Value: path},
	)

	resp, err := t.next.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		t.logger.Error("http request failed",
			observability.Field{Key: "method", Value: req.Method},
			observability.Field{Key: "path", Value: path},
			observability.Field{Key: "duration", Value: duration},
			observability.Field{Key: "error", Value: err.Error()},
		)

		t.metrics.RecordError("http_request", "NetworkError")

		//nolint:wrapcheck // Observability middleware logs error but passes it through unchanged
		return nil, err
	}

	fields := []observability.Field{
		{Key: "method", Value: req.Method},
		{Key: "path", Value: path},
		{Key: "status", Value: resp.StatusCode},
		{Key: "duration", Value: duration},
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("http request completed with error", fields...)
	} else {
		t.logger.Debug("http request completed", fields...)
	}

	t.metrics.RecordHTTPRequest(req.Method, path, resp.StatusCode, duration)

	return resp, nil
}

var (
	// idSegmentPattern matches a whole path segment that is an eero resource id:
	// numeric network/eero/profile ids, MAC-derived hex ids, or MAC addresses.
	idSegmentPattern = regexp.MustCompile(`/(?:\d+|[0-9a-fA-F]{12,}|(?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2})(/|$)`)

	normalizedPathCache sync.Map
)

// normalizePath replaces resource ids in the path with ":id" so metrics keep a
// bounded label set. Full URLs are never logged, paths are logged normalized.
//
// Examples:
//   - /2.2/networks/123456/devices → /2.2/networks/:id/devices
//   - /2.2/networks/123456/devices/a1b2c3d4e5f6 → /2.2/networks/:id/devices/:id
//   - /2.2/eeros/98765/reboot → /2.2/eeros/:id/reboot
//
// The API version segment ("2.2") is not all digits and survives.
func normalizePath(path string) string {
	if cached, ok := normalizedPathCache.Load(path); ok {
		//nolint:forcetypeassert // Cache only stores strings, type assertion is safe
		return cached.(string)
	}

	// Adjacent ids share a slash, so a single pass can miss every other one.
	normalized := path
	for {
		next := idSegmentPattern.ReplaceAllString(normalized, "/:id$1")
		if next == normalized {
			break
		}
		normalized = next
	}

	normalizedPathCache.Store(path, normalized)

	return normalized
}
