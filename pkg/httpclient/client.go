package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// New creates an *http.Client from cfg. See the package documentation for
// the layering and retry policy.
//
// cfg.Timeout applies to each attempt. The client-wide timeout is the sum of
// every attempt plus the worst-case backoff between them.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
				MaxVersion: tls.VersionTLS13,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	var rt http.RoundTripper = newInstrumentedTransport(base, cfg.Service, cfg.UserAgent)

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		rt = newRateLimitTransport(rt, rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst))
	}

	rt = newRetryTransport(rt, cfg)

	return &http.Client{
		Transport: rt,
		Timeout:   totalTimeout(cfg),
	}, nil
}

func totalTimeout(cfg Config) time.Duration {
	total := cfg.Timeout * time.Duration(cfg.MaxAttempts)
	for n := 0; n < cfg.MaxAttempts-1; n++ {
		total += backoffFor(cfg.RateLimitBackoff, n, true, cfg.MaxBackoff)
	}
	return total
}
