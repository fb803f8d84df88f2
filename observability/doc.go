// Package observability provides interfaces for logging and metrics collection
// in the go-eero library.
//
// This package defines the interfaces the eero client logs and records metrics
// through, so callers can plug in their own implementations.
//
// # Logger Interface
//
// The Logger interface supports structured logging with key-value pairs:
//
//	client, err := eero.NewWithConfig(&eero.ClientConfig{
//		Logger: observability.NewLogrusLogger(logrus.StandardLogger()),
//	})
//
// Session tokens and handshake identifiers are never logged in full; the client
// passes them through Mask first.
//
// # MetricsRecorder Interface
//
// Tracked metrics include:
//   - HTTP request count, status codes, and duration
//   - Retry attempts for idempotent reads (when enabled)
//   - Rate limiting events and wait times
//   - Errors by kind (AuthenticationError, TimeoutError, ...)
//   - Session state transitions
//
// # Default Behavior
//
// If no logger or metrics recorder is provided, the client uses no-op
// implementations that discard all events.
package observability
