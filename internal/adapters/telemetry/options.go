package telemetry

import (
	"net/http"
	"time"

	"github.com/okian/usagedash/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds a single page request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBasicAuth authenticates with a public/secret key pair.
func WithBasicAuth(publicKey, secretKey string) Option {
	return func(c *Client) {
		if publicKey != "" || secretKey != "" {
			c.authorize = func(r *http.Request) { r.SetBasicAuth(publicKey, secretKey) }
		}
	}
}

// WithBearerToken authenticates with a static bearer token.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
		}
	}
}

// WithPageSize sets the number of events requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages caps the pages fetched per call.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
