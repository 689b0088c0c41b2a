// Package authflow keeps a single principal's credential set fresh. It owns
// the token lifecycle state machine: deciding at every point in time whether
// the caller is authenticated, and coordinating refresh attempts so exactly
// one is ever in flight while any number of consumers demand a valid token
// concurrently.
package authflow

import (
	"context"
	"errors"
	"time"
)

// ErrNoTokens is returned by TokenStore.Load when no token set is persisted.
var ErrNoTokens = errors.New("authflow: no stored tokens")

// TokenSet bundles the credentials for the active session. A TokenSet is
// never mutated in place; a successful refresh produces a new one that
// replaces the old one wholesale.
type TokenSet struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Valid reports whether the set carries usable token material.
func (t TokenSet) Valid() bool {
	return t.AccessToken != "" && t.RefreshToken != "" &&
		!t.AccessExpiresAt.IsZero() && !t.RefreshExpiresAt.IsZero()
}

// AccessExpired reports whether the access token has expired at the given instant.
func (t TokenSet) AccessExpired(at time.Time) bool {
	return !at.Before(t.AccessExpiresAt)
}

// RefreshExpired reports whether the refresh token has expired at the given
// instant. Once true the session cannot be recovered without a fresh login.
func (t TokenSet) RefreshExpired(at time.Time) bool {
	return !at.Before(t.RefreshExpiresAt)
}

// Credentials carries the caller-supplied login material.
type Credentials struct {
	Username string
	Password string
}

// Endpoint is the remote authentication service boundary. Implementations
// must tag failures with an AuthError code so the classifier can act; an
// unmapped transport failure should be wrapped as CodeNetworkError or
// CodeServerError.
type Endpoint interface {
	Login(ctx context.Context, creds Credentials) (TokenSet, error)
	Refresh(ctx context.Context, sessionID, refreshToken string) (TokenSet, error)
	Logout(ctx context.Context, sessionID, accessToken string) error
}

// TokenStore persists the single active TokenSet across restarts. Load
// returns ErrNoTokens when nothing is persisted. Implementations must be
// safe to call repeatedly; Clear on an empty store is not an error.
type TokenStore interface {
	Save(ctx context.Context, tokens TokenSet) error
	Load(ctx context.Context) (TokenSet, error)
	Clear(ctx context.Context) error
}
