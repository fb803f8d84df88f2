// Package retry holds the policy helpers used by the read-retry middleware and
// by response classification.
package retry

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ShouldRetry returns true if the HTTP status code indicates a transient failure:
//   - 429 (Too Many Requests)
//   - 5xx (Server Errors)
func ShouldRetry(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError || statusCode == http.StatusTooManyRequests
}

// IsIdempotent reports whether a request with this method may be replayed safely.
// Writes such as "reboot eero" are POSTs and are never replayed.
func IsIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ParseRetryAfter parses the Retry-After HTTP header and returns the duration to wait.
// The header may hold a number of seconds ("120") or an HTTP-date.
// Returns 0 if the header is empty, malformed, or in the past.
func ParseRetryAfter(header string) time.Duration {
	return parseRetryAfter(header, time.Now())
}

func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	when, err := http.ParseTime(header)
	if err != nil {
		return 0
	}

	if wait := when.Sub(now); wait > 0 {
		return wait
	}

	return 0
}
