package eero

import (
	"context"
	"encoding/json"
)

// EeroAPIClient defines the operations of Client.
// This interface enables consumers to create mock implementations for testing.
//
//nolint:revive // EeroAPIClient is intentionally explicit to avoid confusion with Client struct
type EeroAPIClient interface {
	// Authentication

	// Login asks eero to send a verification code.
	Login(ctx context.Context, identifier string) error
	// Verify completes a login with the received code.
	Verify(ctx context.Context, code string) error
	// ResendCode asks eero to send the verification code again.
	ResendCode(ctx context.Context) error
	// Logout ends the session.
	Logout(ctx context.Context) error
	// IsAuthenticated reports whether a usable session is held.
	IsAuthenticated(ctx context.Context) bool

	// Raw access

	// Do performs an authenticated request and returns the data payload.
	Do(ctx context.Context, method, path string, body any) (json.RawMessage, error)

	// Resources

	Account(ctx context.Context) (json.RawMessage, error)
	Networks(ctx context.Context) (json.RawMessage, error)
	Network(ctx context.Context, networkID string) (json.RawMessage, error)
	Eeros(ctx context.Context, networkID string) (json.RawMessage, error)
	Devices(ctx context.Context, networkID string) (json.RawMessage, error)
	Profiles(ctx context.Context, networkID string) (json.RawMessage, error)
	RebootEero(ctx context.Context, eeroID string) (json.RawMessage, error)
}
