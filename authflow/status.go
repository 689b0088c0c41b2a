package authflow

// Status is the externally observable authentication state. Transitions are
// performed only by the Manager, and only when the value actually changes,
// so a status stream never carries duplicate consecutive values.
type Status int

const (
	// StatusUnknown applies before the first Initialize.
	StatusUnknown Status = iota
	// StatusUnauthenticated means no usable session exists; prompt a login.
	StatusUnauthenticated
	// StatusAuthenticated means the session is valid.
	StatusAuthenticated
	// StatusExpiringSoon means the session is valid but the access token is
	// within the configured threshold of expiry.
	StatusExpiringSoon
	// StatusRefreshing means a refresh is in flight.
	StatusRefreshing
	// StatusSessionInvalid means the server permanently rejected the session;
	// only an explicit login can recover.
	StatusSessionInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpiringSoon:
		return "expiringSoon"
	case StatusRefreshing:
		return "refreshing"
	case StatusSessionInvalid:
		return "sessionInvalid"
	default:
		return "invalid"
	}
}

// Live reports whether the status represents a currently usable session.
func (s Status) Live() bool {
	return s == StatusAuthenticated || s == StatusExpiringSoon || s == StatusRefreshing
}

// Terminal reports whether re-entering an authenticated state requires an
// explicit login.
func (s Status) Terminal() bool {
	return s == StatusUnauthenticated || s == StatusSessionInvalid
}
