package authflow

import (
	"errors"
	"fmt"
)

// Code identifies a machine-readable failure class. Codes outside the
// predeclared set pass through verbatim from the remote endpoint.
type Code string

const (
	// CodeNotLoggedIn is returned when an operation requires a session and
	// none is held. Caller misuse; never retried.
	CodeNotLoggedIn Code = "NOT_LOGGED_IN"
	// CodeNetworkError wraps transport-level failures. Transient.
	CodeNetworkError Code = "NETWORK_ERROR"
	// CodeServerError wraps remote 5xx and otherwise unmapped HTTP failures. Transient.
	CodeServerError Code = "SERVER_ERROR"
	// CodeStorageError wraps persistence I/O failures. Transient.
	CodeStorageError Code = "STORAGE_ERROR"
	// CodeSessionRevoked means the server revoked the session. Permanent.
	CodeSessionRevoked Code = "SESSION_REVOKED"
	// CodeInvalidRefreshToken means the server rejected the refresh token. Permanent.
	CodeInvalidRefreshToken Code = "INVALID_REFRESH_TOKEN"
	// CodeRefreshTokenExpired means the refresh token expired server-side. Permanent.
	CodeRefreshTokenExpired Code = "REFRESH_TOKEN_EXPIRED"
)

// AuthError tags a failure with a Code so callers classify by code, never by
// message text.
type AuthError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authflow: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("authflow: %s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewError builds a tagged failure without an underlying cause.
func NewError(code Code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// WrapError tags an underlying error with a Code.
func WrapError(code Code, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, or the empty Code when err carries no
// AuthError in its chain.
func CodeOf(err error) Code {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Classifier distinguishes permanent (server-rejected) failures from
// transient ones. This is the single seam deciding whether the state machine
// gives up on a session or keeps it alive and retries.
type Classifier struct {
	permanent map[Code]struct{}
}

// NewClassifier builds a Classifier over the built-in permanent set, extended
// with any extra codes (typically account-disabled or account-deleted codes).
func NewClassifier(extra ...Code) *Classifier {
	permanent := map[Code]struct{}{
		CodeSessionRevoked:      {},
		CodeInvalidRefreshToken: {},
		CodeRefreshTokenExpired: {},
	}
	for _, code := range extra {
		if code != "" {
			permanent[code] = struct{}{}
		}
	}
	return &Classifier{permanent: permanent}
}

// IsPermanent reports whether err is a server-confirmed session rejection
// that can never succeed on retry. Everything else, including unclassified
// errors, network failures, and server 5xx, is transient.
func (c *Classifier) IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	_, ok := c.permanent[CodeOf(err)]
	return ok
}

// IsPermanent classifies err against the built-in permanent set.
func IsPermanent(err error) bool {
	return defaultClassifier.IsPermanent(err)
}

var defaultClassifier = NewClassifier()
