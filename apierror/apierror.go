// Package apierror defines the error taxonomy shared by the eero client.
//
// Every error returned by the client carries exactly one primary Kind. Kinds are
// attached with errors.Mark, so callers can test them with errors.Is against the
// exported sentinels or ask for the Kind directly:
//
//	if errors.Is(err, apierror.ErrAuthentication) {
//	    // log in again
//	}
//
//	switch apierror.KindOf(err) {
//	case apierror.KindTimeout, apierror.KindNetwork:
//	    // transient, caller may retry idempotent reads
//	}
//
// Failures reported by the remote service additionally carry an *APIError with
// the transport status, the metadata code and the remote message verbatim:
//
//	var apiErr *apierror.APIError
//	if errors.As(err, &apiErr) {
//	    fmt.Println(apiErr.Code, apiErr.Message)
//	}
package apierror

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failure independently of its concrete type.
type Kind int

// Error kinds. KindUnknown is returned for errors that did not originate in the client.
const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindAuthentication
	KindForbidden
	KindNotFound
	KindTimeout
	KindNetwork
	KindAPI
)

// Sentinels used as marks. Compare with errors.Is.
var (
	// ErrValidation marks malformed caller input. Such errors never reach the network.
	ErrValidation = errors.New("validation error")
	// ErrState marks an operation that is invalid for the current authentication state.
	ErrState = errors.New("invalid session state")
	// ErrAuthentication marks a missing, invalid or expired credential.
	ErrAuthentication = errors.New("authentication error")
	// ErrForbidden marks an authenticated request that is not permitted.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an absent remote resource.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks an exceeded deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNetwork marks a transport failure below HTTP, or an unavailable credential backend.
	ErrNetwork = errors.New("network error")
	// ErrAPI marks any other failure reported by the remote service.
	ErrAPI = errors.New("api error")
)

// kindOrder lists kinds from most to least specific. KindOf reports the first match,
// so an authentication failure wrapping a remote rejection is still reported as
// KindAuthentication.
var kindOrder = []Kind{
	KindValidation,
	KindState,
	KindAuthentication,
	KindForbidden,
	KindNotFound,
	KindTimeout,
	KindNetwork,
	KindAPI,
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindState:
		return "StateError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindForbidden:
		return "ForbiddenError"
	case KindNotFound:
		return "NotFoundError"
	case KindTimeout:
		return "TimeoutError"
	case KindNetwork:
		return "NetworkError"
	case KindAPI:
		return "APIError"
	case KindUnknown:
		return "UnknownError"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel returns the mark associated with the kind, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindState:
		return ErrState
	case KindAuthentication:
		return ErrAuthentication
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindTimeout:
		return ErrTimeout
	case KindNetwork:
		return ErrNetwork
	case KindAPI:
		return ErrAPI
	case KindUnknown:
	}

	return nil
}

// APIError carries the details of a failure reported by the remote service.
type APIError struct {
	// StatusCode is the HTTP status of the exchange.
	StatusCode int
	// Code is the status reported in the response metadata block (0 if absent).
	Code int
	// Message is the remote error text, verbatim.
	Message string
	// Detail is the optional secondary remote message.
	Detail string
	// ServerTime is the server timestamp from the metadata block, unparsed.
	ServerTime string
	// RetryAfter is the parsed Retry-After header, if the remote sent one.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Detail
	}
	if msg == "" {
		return fmt.Sprintf("eero API error: status=%d code=%d", e.StatusCode, e.Code)
	}

	return fmt.Sprintf("eero API error: status=%d code=%d: %s", e.StatusCode, e.Code, msg)
}

// New returns an error of the given kind.
func New(kind Kind, msg string) error {
	return mark(errors.NewWithDepth(1, msg), kind)
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return mark(errors.NewWithDepthf(1, format, args...), kind)
}

// Wrap annotates err with msg and marks the result with kind.
// It returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}

	return mark(errors.WrapWithDepth(1, err, msg), kind)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return mark(errors.WrapWithDepthf(1, err, format, args...), kind)
}

// FromAPIError marks a remote failure with kind.
func FromAPIError(apiErr *APIError, kind Kind) error {
	return mark(errors.WithStackDepth(apiErr, 1), kind)
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	sentinel := kind.Sentinel()
	if err == nil || sentinel == nil {
		return false
	}

	return errors.Is(err, sentinel)
}

// KindOf returns the most specific kind carried by err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, kind := range kindOrder {
		if errors.Is(err, kind.Sentinel()) {
			return kind
		}
	}

	return KindUnknown
}

// AsAPIError extracts the remote failure details from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}

func mark(err error, kind Kind) error {
	sentinel := kind.Sentinel()
	if sentinel == nil {
		return err
	}

	//nolint:wrapcheck // Mark decorates the error, it does not hide its origin
	return errors.Mark(err, sentinel)
}
