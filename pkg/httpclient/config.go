package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// Config configures the HTTP client with timeout, retry, and observability settings.
type Config struct {
	// Service labels logs and metrics, e.g. "nppes" or "ehr".
	Service string

	// Timeout bounds a single attempt. Default: 30s.
	Timeout time.Duration

	// MaxAttempts is the total number of requests made before giving up,
	// including the first one. 1 disables retries. Default: 3.
	MaxAttempts int

	// RateLimitBackoff is the base delay for retryable statuses (429).
	// The n-th retry waits RateLimitBackoff * 2^n. Default: 1s.
	RateLimitBackoff time.Duration

	// ConnectionBackoff is the base delay for connection failures.
	// The n-th retry waits ConnectionBackoff * (n+1). Default: 1s.
	ConnectionBackoff time.Duration

	// MaxBackoff caps any single delay. Default: 30s.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of the delay at random. Default: 0.
	Jitter float64

	// RetryStatuses lists the HTTP statuses that trigger the exponential
	// backoff. Default: [429].
	RetryStatuses []int

	// UserAgent is the User-Agent header value. Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retrying POST/PUT/PATCH/DELETE after a
	// connection failure, where the server may already have acted.
	AllowNonIdempotentRetry bool

	// RequestsPerSecond installs a client side token bucket when > 0.
	RequestsPerSecond float64

	// Burst is the token bucket size. Defaults to 1 when a rate is set.
	Burst int

	// Transport replaces the default base transport. Used by tests.
	Transport http.RoundTripper
}

// DefaultConfig mirrors the NPPES client behaviour: three attempts, one
// second base delays, retry on 429 only.
func DefaultConfig() Config {
	return Config{
		Service:           "upstream",
		Timeout:           30 * time.Second,
		MaxAttempts:       3,
		RateLimitBackoff:  time.Second,
		ConnectionBackoff: time.Second,
		MaxBackoff:        30 * time.Second,
		RetryStatuses:     []int{http.StatusTooManyRequests},
		UserAgent:         "referral-agent/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}

	if c.MaxAttempts > 1 {
		if c.RateLimitBackoff <= 0 || c.ConnectionBackoff <= 0 {
			return fmt.Errorf("backoff delays must be > 0 when max_attempts > 1")
		}
		if c.MaxBackoff < c.RateLimitBackoff || c.MaxBackoff < c.ConnectionBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= the base backoff delays", c.MaxBackoff)
		}
	}

	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0, 1], got %v", c.Jitter)
	}

	for _, s := range c.RetryStatuses {
		if s < 400 || s > 599 {
			return fmt.Errorf("retry status %d is not an HTTP error status", s)
		}
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0, got %v", c.RequestsPerSecond)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	return nil
}
