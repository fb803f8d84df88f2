package middleware_test

import (
	"sync"
	"sync/atomic"
	"time"
)

type countingMetrics struct {
	requests atomic.Int32
	retries  atomic.Int32
	waits    atomic.Int32
	errors   atomic.Int32

	mu       sync.Mutex
	endpoint string
	status   int
}

func (m *countingMetrics) RecordHTTPRequest(_, path string, statusCode int, _ time.Duration) {
	m.requests.Add(1)
	m.mu.Lock()
	m.endpoint = path
	m.status = statusCode
	m.mu.Unlock()
}

func (m *countingMetrics) RecordRetry(_ int, endpoint string) {
	m.retries.Add(1)
	m.mu.Lock()
	m.endpoint = endpoint
	m.mu.Unlock()
}

func (m *countingMetrics) RecordRateLimit(endpoint string, _ time.Duration) {
	m.waits.Add(1)
	m.mu.Lock()
	m.endpoint = endpoint
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(string, string) {
	m.errors.Add(1)
}

func (m *countingMetrics) RecordSessionTransition(string, string) {}

func (m *countingMetrics) lastEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

func (m *countingMetrics) lastStatus() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
