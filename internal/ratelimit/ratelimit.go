// Package ratelimit builds the client-side token bucket.
package ratelimit

import "golang.org/x/time/rate"

// NewRateLimiter creates a limiter refilled at requestsPerMinute/60 tokens per second
// with a burst of requestsPerMinute/60 (at least one). It returns nil, meaning no
// limiting, when requestsPerMinute is not positive.
func NewRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burstFor(requestsPerMinute))
}

func burstFor(requestsPerMinute int) int {
	return max(requestsPerMinute/60, 1)
}
