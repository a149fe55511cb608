package upstream

import (
	"net/http"
	"time"

	"github.com/fpvleague/lapboard/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithURL sets the provider endpoint.
func WithURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.url = u
		}
	}
}

// WithToken sets the bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithSimVersion sets the sim_version parameter.
func WithSimVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.simVersion = v
		}
	}
}

// WithPageSize sets the count parameter.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithProtectedTrackValue sets the protected_track_value parameter.
func WithProtectedTrackValue(v int) Option {
	return func(c *Client) {
		c.protectedTrackValue = v
	}
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit paces outbound calls. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.ratePerSec = perSecond
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithBreaker configures the circuit breaker.
func WithBreaker(failureThreshold int, openFor time.Duration) Option {
	return func(c *Client) {
		if failureThreshold > 0 {
			c.failureThreshold = uint32(failureThreshold)
		}
		if openFor > 0 {
			c.openFor = openFor
		}
	}
}

// WithMaxBodyBytes caps how much of a provider response is read.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithStateListener is called on every breaker state change.
func WithStateListener(fn func(from, to string)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
