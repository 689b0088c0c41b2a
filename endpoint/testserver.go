package endpoint

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adeilh/go-vigil/authflow"
)

// TestServer is an in-process fake of the remote auth service, exposed so
// consumers can exercise the full lifecycle without a real backend. It
// accepts a single username/password pair, issues rotating token sets with
// configurable TTLs, and can be scripted to fail refreshes with a chosen
// error code.
type TestServer struct {
	*httptest.Server

	mu         sync.Mutex
	username   string
	password   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	sessions map[string]string // session id -> current refresh token

	refreshErr   *errorResponse
	refreshFails int

	loginCalls   int
	refreshCalls int
	logoutCalls  int
}

// TestServerOptions configures NewTestServer. Zero values get sane defaults.
type TestServerOptions struct {
	Username   string
	Password   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewTestServer starts the fake auth service. Callers must Close it.
func NewTestServer(opts TestServerOptions) *TestServer {
	ts := &TestServer{
		username:   opts.Username,
		password:   opts.Password,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		sessions:   make(map[string]string),
	}
	if ts.username == "" {
		ts.username = "tester"
	}
	if ts.password == "" {
		ts.password = "secret"
	}
	if ts.accessTTL <= 0 {
		ts.accessTTL = 15 * time.Minute
	}
	if ts.refreshTTL <= 0 {
		ts.refreshTTL = 30 * 24 * time.Hour
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/v1/auth/login", ts.handleLogin)
	e.POST("/v1/auth/refresh", ts.handleRefresh)
	e.POST("/v1/auth/logout", ts.handleLogout)

	ts.Server = httptest.NewServer(e)
	return ts
}

// BaseURL returns the server's base address for NewClient(WithBaseURL(...)).
func (ts *TestServer) BaseURL() string { return ts.URL }

// FailRefreshWith makes the next refresh calls answer with the given code.
// times <= 0 keeps failing until ClearRefreshError.
func (ts *TestServer) FailRefreshWith(code authflow.Code, message string, times int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.refreshErr = &errorResponse{Code: string(code), Message: message}
	ts.refreshFails = times
}

// ClearRefreshError restores normal refresh behavior.
func (ts *TestServer) ClearRefreshError() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.refreshErr = nil
	ts.refreshFails = 0
}

// LoginCalls reports how many login requests the server has seen.
func (ts *TestServer) LoginCalls() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.loginCalls
}

// RefreshCalls reports how many refresh requests the server has seen.
func (ts *TestServer) RefreshCalls() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshCalls
}

// LogoutCalls reports how many logout requests the server has seen.
func (ts *TestServer) LogoutCalls() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.logoutCalls
}

func (ts *TestServer) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: string(authflow.CodeServerError), Message: "malformed request"})
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.loginCalls++

	if req.Username != ts.username || req.Password != ts.password {
		return c.JSON(http.StatusUnauthorized, errorResponse{Code: "INVALID_CREDENTIALS", Message: "unknown user or wrong password"})
	}

	sessionID := uuid.NewString()
	tokens := ts.issueLocked(sessionID)
	return c.JSON(http.StatusOK, tokens)
}

func (ts *TestServer) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: string(authflow.CodeServerError), Message: "malformed request"})
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.refreshCalls++

	if ts.refreshErr != nil {
		resp := *ts.refreshErr
		if ts.refreshFails > 0 {
			ts.refreshFails--
			if ts.refreshFails == 0 {
				ts.refreshErr = nil
			}
		}
		return c.JSON(statusForCode(authflow.Code(resp.Code)), resp)
	}

	current, ok := ts.sessions[req.SessionID]
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Code: string(authflow.CodeSessionRevoked), Message: "unknown session"})
	}
	if current != req.RefreshToken {
		return c.JSON(http.StatusUnauthorized, errorResponse{Code: string(authflow.CodeInvalidRefreshToken), Message: "refresh token does not match"})
	}

	tokens := ts.issueLocked(req.SessionID)
	return c.JSON(http.StatusOK, tokens)
}

func (ts *TestServer) handleLogout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: string(authflow.CodeServerError), Message: "malformed request"})
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.logoutCalls++
	delete(ts.sessions, req.SessionID)
	return c.NoContent(http.StatusNoContent)
}

// issueLocked mints a rotated token pair for the session. Callers hold ts.mu.
func (ts *TestServer) issueLocked(sessionID string) tokenResponse {
	now := time.Now()
	tokens := tokenResponse{
		AccessToken:      "at-" + uuid.NewString(),
		RefreshToken:     "rt-" + uuid.NewString(),
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(ts.accessTTL),
		RefreshExpiresAt: now.Add(ts.refreshTTL),
	}
	ts.sessions[sessionID] = tokens.RefreshToken
	return tokens
}

func statusForCode(code authflow.Code) int {
	switch code {
	case authflow.CodeSessionRevoked, authflow.CodeInvalidRefreshToken, authflow.CodeRefreshTokenExpired:
		return http.StatusUnauthorized
	case authflow.CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
