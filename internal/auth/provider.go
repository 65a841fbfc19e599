// Package auth owns the authenticated identity lifecycle: the session
// provider abstraction, the profile cache, and the coordinator that keeps a
// normalized user record in sync with provider notifications.
package auth

import (
	"context"

	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// Session is the provider-issued authenticated session. The token is opaque
// to the client; it is only compared by value and forwarded as a bearer
// credential.
type Session struct {
	UserID      string
	AccessToken string
	Email       string
	Name        string
}

// Identity returns the identity pair for this session.
func (s *Session) Identity() types.Identity {
	return types.Identity{UserID: s.UserID, AccessToken: s.AccessToken}
}

// EventKind classifies a session-change notification.
type EventKind string

const (
	SignedIn       EventKind = "SIGNED_IN"
	SignedOut      EventKind = "SIGNED_OUT"
	TokenRefreshed EventKind = "TOKEN_REFRESHED"
	UserUpdated    EventKind = "USER_UPDATED"
)

// Event is a session-change notification from the provider. Session is nil
// for SignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the opaque session issuer. Implementations deliver events in
// emission order, one handler invocation at a time.
type Provider interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// SignOut terminates the session globally.
	SignOut(ctx context.Context) error

	// Subscribe registers a session-change handler and returns an
	// unsubscribe function.
	Subscribe(fn func(Event)) (unsubscribe func())
}
