package credential

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ErrCorrupt marks a persisted record that exists but cannot be decoded.
var ErrCorrupt = errors.New("credential record is corrupt")

// Record is the persisted form of an authenticated session.
// JSON field names match the session file written by earlier eero clients.
type Record struct {
	// Token is the opaque session token sent as the "s" cookie.
	Token string `json:"session_id"`
	// CreatedAt is when the session was verified.
	CreatedAt time.Time `json:"created_at,omitzero"`
	// ExpiresAt is when the session should be considered stale. Zero means unknown.
	ExpiresAt time.Time `json:"session_expiry,omitzero"`
	// AccountID identifies the eero account, when the service reported it.
	AccountID string `json:"account_id,omitempty"`
	// PreferredNetworkID is the network used when a caller does not name one.
	PreferredNetworkID string `json:"preferred_network_id,omitempty"`
}

// Usable reports whether the record carries a token.
func (r *Record) Usable() bool {
	return r != nil && r.Token != ""
}

// Expired reports whether the record has a known expiry that is not after now.
func (r *Record) Expired(now time.Time) bool {
	return r != nil && !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}

	cp := *r
	return &cp
}
