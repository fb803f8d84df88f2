// Package response parses the eero response envelope and classifies failures.
//
// Every eero reply has the shape
//
//	{"meta": {"code": 200, "server_time": "..."}, "data": {...}}
//
// and the metadata code may report a failure even when the HTTP status is 200.
package response

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/internal/retry"
)

// Meta is the metadata block of an envelope.
type Meta struct {
	Code       int    `json:"code"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	ServerTime string `json:"server_time,omitempty"`
}

// Envelope is a parsed reply. Data is forwarded byte-for-byte and never interpreted here.
type Envelope struct {
	StatusCode int             `json:"-"`
	Meta       Meta            `json:"meta"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Parse decodes body and classifies the exchange.
//
// On failure it returns the envelope (when the body could be decoded) together
// with an error carrying an apierror kind and an *apierror.APIError. An empty body
// is a valid reply without data.
func Parse(statusCode int, header http.Header, body []byte) (*Envelope, error) {
	env := &Envelope{StatusCode: statusCode}

	decodeErr := decode(body, env)
	if decodeErr != nil {
		if statusCode >= http.StatusBadRequest {
			return nil, Classify(statusCode, Meta{Error: http.StatusText(statusCode)}, header)
		}

		apiErr := &apierror.APIError{
			StatusCode: statusCode,
			Message:    "invalid JSON in response body",
			Detail:     decodeErr.Error(),
		}

		return nil, apierror.FromAPIError(apiErr, apierror.KindAPI)
	}

	if err := Classify(statusCode, env.Meta, header); err != nil {
		return env, err
	}

	return env, nil
}

// Classify maps an HTTP status and a metadata block to an error, or nil on success.
// A metadata code of 400 or above is authoritative; otherwise the HTTP status decides.
func Classify(statusCode int, meta Meta, header http.Header) error {
	code := statusCode
	if meta.Code >= http.StatusBadRequest {
		code = meta.Code
	}

	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	apiErr := &apierror.APIError{
		StatusCode: statusCode,
		Code:       meta.Code,
		Message:    meta.Error,
		Detail:     meta.Message,
		ServerTime: meta.ServerTime,
	}
	if header != nil {
		apiErr.RetryAfter = retry.ParseRetryAfter(header.Get("Retry-After"))
	}
	if apiErr.Message == "" && apiErr.Detail == "" {
		apiErr.Message = http.StatusText(code)
	}

	return apierror.FromAPIError(apiErr, KindFor(code))
}

// KindFor returns the error kind for a failing status code.
func KindFor(code int) apierror.Kind {
	switch code {
	case http.StatusUnauthorized:
		return apierror.KindAuthentication
	case http.StatusForbidden:
		return apierror.KindForbidden
	case http.StatusNotFound:
		return apierror.KindNotFound
	default:
		return apierror.KindAPI
	}
}

// Decode unmarshals the data payload into a T.
//
// Usage:
//
//	user, err := response.Decode[loginData](resp.Envelope, "failed to read login reply")
func Decode[T any](env *Envelope, errorMsg string) (*T, error) {
	if env == nil || len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, apierror.FromAPIError(&apierror.APIError{
			StatusCode: statusOf(env),
			Message:    errorMsg + ": empty data in response",
		}, apierror.KindAPI)
	}

	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, apierror.FromAPIError(&apierror.APIError{
			StatusCode: env.StatusCode,
			Message:    errorMsg,
			Detail:     err.Error(),
		}, apierror.KindAPI)
	}

	return &out, nil
}

func decode(body []byte, env *Envelope) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, env); err != nil {
		return errors.Wrap(err, "decode envelope")
	}

	return nil
}

func statusOf(env *Envelope) int {
	if env == nil {
		return 0
	}
	return env.StatusCode
}
