package session

import (
	"fmt"
	"time"
)

// State is the authentication state of a Manager.
type State int

// States. The zero value is Unauthenticated.
const (
	Unauthenticated State = iota
	PendingVerification
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case PendingVerification:
		return "PendingVerification"
	case Authenticated:
		return "Authenticated"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Info is a point-in-time view of the session, safe to hand to callers.
type Info struct {
	State              State
	AccountID          string
	PreferredNetworkID string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	// Injected is set for a session built from a pre-supplied token.
	Injected bool
}
