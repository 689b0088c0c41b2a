package endpoint

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// RestClient exposes a minimal subset of resty.Client for customization
// without importing resty.
type RestClient interface {
	SetHeader(key, value string) RestClient
	SetHeaders(headers map[string]string) RestClient
	SetTimeout(d time.Duration) RestClient
}

type restyAdapter struct{ c *resty.Client }

func (r restyAdapter) SetHeader(key, value string) RestClient {
	r.c.SetHeader(key, value)
	return r
}

func (r restyAdapter) SetHeaders(headers map[string]string) RestClient {
	r.c.SetHeaders(headers)
	return r
}

func (r restyAdapter) SetTimeout(d time.Duration) RestClient {
	r.c.SetTimeout(d)
	return r
}

// ClientOptions configures the auth endpoint client.
type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	Headers     map[string]string
	LoginPath   string
	RefreshPath string
	LogoutPath  string
	RestyConfig func(RestClient)
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:     10 * time.Second,
		Headers:     map[string]string{"Content-Type": "application/json"},
		LoginPath:   "/v1/auth/login",
		RefreshPath: "/v1/auth/refresh",
		LogoutPath:  "/v1/auth/logout",
	}
}

// WithBaseURL sets the base address of the remote auth service.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

// WithTimeout bounds each individual HTTP call.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithHeaders replaces the default request headers.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if len(headers) == 0 {
			return
		}
		o.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithPaths overrides the login/refresh/logout route paths.
func WithPaths(login, refresh, logout string) ClientOption {
	return func(o *ClientOptions) {
		if login != "" {
			o.LoginPath = login
		}
		if refresh != "" {
			o.RefreshPath = refresh
		}
		if logout != "" {
			o.LogoutPath = logout
		}
	}
}

// WithRestyConfig exposes the underlying client for advanced customization.
func WithRestyConfig(fn func(RestClient)) ClientOption {
	return func(o *ClientOptions) {
		o.RestyConfig = fn
	}
}
