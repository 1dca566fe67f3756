package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ExhaustedError is returned once every attempt has failed with a retryable
// outcome. Exactly one of StatusCode or Err is set.
type ExhaustedError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *ExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("request failed after %d attempts: HTTP %d", e.Attempts, e.StatusCode)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// retryTransport retries rate-limited responses with exponential backoff and
// connection failures with linear backoff.
type retryTransport struct {
	base                    http.RoundTripper
	service                 string
	maxAttempts             int
	rateLimitBackoff        time.Duration
	connectionBackoff       time.Duration
	maxBackoff              time.Duration
	jitter                  float64
	retryStatuses           map[int]bool
	allowNonIdempotentRetry bool

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	statuses := make(map[int]bool, len(cfg.RetryStatuses))
	for _, s := range cfg.RetryStatuses {
		statuses[s] = true
	}

	return &retryTransport{
		base:                    base,
		service:                 cfg.Service,
		maxAttempts:             cfg.MaxAttempts,
		rateLimitBackoff:        cfg.RateLimitBackoff,
		connectionBackoff:       cfg.ConnectionBackoff,
		maxBackoff:              cfg.MaxBackoff,
		jitter:                  cfg.Jitter,
		retryStatuses:           statuses,
		allowNonIdempotentRetry: cfg.AllowNonIdempotentRetry,
		sleep:                   sleepContext,
	}
}

// RoundTrip implements http.RoundTripper with retry logic.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	idempotent := isIdempotentMethod(req.Method)

	var lastErr error
	var lastStatus int

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		attemptReq, err := rewindRequest(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		final := attempt == t.maxAttempts-1

		if err != nil {
			if !isRetryableError(err) || (!idempotent && !t.allowNonIdempotentRetry) {
				return nil, err
			}
			lastErr, lastStatus = err, 0
			recordRetry(t.service, "connection", final)
			if final {
				break
			}
			delay := t.backoff(t.connectionBackoff, attempt, false)
			slog.WarnContext(ctx, "upstream request failed, retrying",
				"service", t.service, "attempt", attempt+1, "delay", delay, "error", err.Error())
			if err := t.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if !t.retryStatuses[resp.StatusCode] {
			return resp, nil
		}

		lastErr, lastStatus = nil, resp.StatusCode
		recordRetry(t.service, "status_"+strconv.Itoa(resp.StatusCode), final)

		delay := t.backoff(t.rateLimitBackoff, attempt, true)
		if ra := parseRetryAfter(resp); ra > 0 && ra < delay {
			delay = ra
		}
		drainAndClose(resp)

		if final {
			break
		}
		slog.WarnContext(ctx, "upstream rate limited, retrying",
			"service", t.service, "attempt", attempt+1, "status", lastStatus, "delay", delay)
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Attempts: t.maxAttempts, StatusCode: lastStatus, Err: lastErr}
}

func (t *retryTransport) backoff(base time.Duration, attempt int, exponential bool) time.Duration {
	d := backoffFor(base, attempt, exponential, t.maxBackoff)
	if t.jitter > 0 {
		d += time.Duration(rand.Float64() * t.jitter * float64(d))
	}
	return d
}

// backoffFor computes the un-jittered delay after the 0-based attempt.
func backoffFor(base time.Duration, attempt int, exponential bool, max time.Duration) time.Duration {
	var d float64
	if exponential {
		d = float64(base) * math.Pow(2, float64(attempt))
	} else {
		d = float64(base) * float64(attempt+1)
	}
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// rewindRequest returns the request to send for attempt. Later attempts get
// a fresh body from GetBody.
func rewindRequest(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry %s %s: request body is not replayable", req.Method, req.URL.Path)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// isRetryableError reports whether err looks like a connection-level failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return isRetryableError(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}

// parseRetryAfter extracts the Retry-After header value in either the
// delay-seconds or HTTP-date form. Returns 0 when absent or invalid.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(header); err == nil {
		if delay := time.Until(retryTime); delay > 0 {
			return delay
		}
	}

	return 0
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
