package httpclient

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitTransport blocks each attempt until the limiter grants a token.
type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func newRateLimitTransport(base http.RoundTripper, limiter *rate.Limiter) *rateLimitTransport {
	return &rateLimitTransport{base: base, limiter: limiter}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
