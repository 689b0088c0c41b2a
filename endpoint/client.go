// Package endpoint implements authflow.Endpoint over HTTP JSON. Failures are
// tagged with authflow codes: error bodies carrying a code pass it through
// verbatim, transport failures map to NETWORK_ERROR, and HTTP errors without
// a usable body map to SERVER_ERROR.
package endpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/adeilh/go-vigil/authflow"
)

// Client talks to the remote auth service.
type Client struct {
	resty *resty.Client
	paths struct {
		login, refresh, logout string
	}
}

// NewClient builds an auth endpoint client.
func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resty.New()
	if cfg.BaseURL != "" {
		rc.SetBaseURL(cfg.BaseURL)
	}
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if len(cfg.Headers) > 0 {
		rc.SetHeaders(cfg.Headers)
	}
	if cfg.RestyConfig != nil {
		cfg.RestyConfig(restyAdapter{rc})
	}

	c := &Client{resty: rc}
	c.paths.login = cfg.LoginPath
	c.paths.refresh = cfg.RefreshPath
	c.paths.logout = cfg.LogoutPath
	return c
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	SessionID    string `json:"session_id"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (r tokenResponse) tokenSet() authflow.TokenSet {
	return authflow.TokenSet{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		SessionID:        r.SessionID,
		AccessExpiresAt:  r.AccessExpiresAt,
		RefreshExpiresAt: r.RefreshExpiresAt,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login exchanges credentials for a TokenSet.
func (c *Client) Login(ctx context.Context, creds authflow.Credentials) (authflow.TokenSet, error) {
	var out tokenResponse
	resp, err := c.post(ctx, c.paths.login, loginRequest{Username: creds.Username, Password: creds.Password}, &out)
	if err != nil {
		return authflow.TokenSet{}, authflow.WrapError(authflow.CodeNetworkError, "login request failed", err)
	}
	if resp.IsError() {
		return authflow.TokenSet{}, remoteError(resp)
	}
	return out.tokenSet(), nil
}

// Refresh exchanges the refresh token for a new TokenSet.
func (c *Client) Refresh(ctx context.Context, sessionID, refreshToken string) (authflow.TokenSet, error) {
	var out tokenResponse
	resp, err := c.post(ctx, c.paths.refresh, refreshRequest{SessionID: sessionID, RefreshToken: refreshToken}, &out)
	if err != nil {
		return authflow.TokenSet{}, authflow.WrapError(authflow.CodeNetworkError, "refresh request failed", err)
	}
	if resp.IsError() {
		return authflow.TokenSet{}, remoteError(resp)
	}
	return out.tokenSet(), nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context, sessionID, accessToken string) error {
	resp, err := c.post(ctx, c.paths.logout, logoutRequest{SessionID: sessionID, AccessToken: accessToken}, nil)
	if err != nil {
		return authflow.WrapError(authflow.CodeNetworkError, "logout request failed", err)
	}
	if resp.IsError() {
		return remoteError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) (*resty.Response, error) {
	req := c.resty.R().SetContext(ctx).SetBody(body).SetError(&errorResponse{})
	if result != nil {
		req.SetResult(result)
	}
	return req.Post(path)
}

// remoteError maps an HTTP error response onto an AuthError. A body carrying
// a code wins; anything else becomes SERVER_ERROR so the classifier treats
// it as transient.
func remoteError(resp *resty.Response) error {
	if body, ok := resp.Error().(*errorResponse); ok && body.Code != "" {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode())
		}
		return authflow.NewError(authflow.Code(body.Code), msg)
	}
	return authflow.NewError(authflow.CodeServerError, fmt.Sprintf("http %d from auth service", resp.StatusCode()))
}
