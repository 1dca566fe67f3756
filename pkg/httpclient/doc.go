// Package httpclient builds the HTTP clients used to talk to the agent's
// upstream REST services (the NPPES registry, the EHR and the LLM APIs).
//
// Clients are composed from RoundTripper layers, outermost first:
//   - retry: bounded attempts with a per-cause backoff policy
//   - rate limit: optional token bucket shared by every attempt
//   - instrumentation: User-Agent, X-Request-ID, sanitized request logs,
//     prometheus counters and an OpenTelemetry span per attempt
//   - base transport: TLS 1.2+ with connection pooling
//
// # Retry Behavior
//
// MaxAttempts bounds the total number of requests, including the first.
//   - HTTP 429 (and any other status listed in RetryStatuses) waits
//     RateLimitBackoff * 2^n before the next attempt, n being the 0-based
//     index of the failed attempt. A shorter Retry-After header wins.
//   - Connection failures (refused, reset, DNS, timeouts, unexpected EOF)
//     wait ConnectionBackoff * (n+1).
//   - Every other status is returned to the caller untouched.
//
// When attempts run out the client returns an *ExhaustedError, which callers
// unwrap with errors.As to build their own user-facing message.
//
// A status-based retry is safe for any method because the server refused the
// request. Connection failures on POST, PUT, PATCH and DELETE are only retried
// when AllowNonIdempotentRetry is set. Request bodies are replayed through
// http.Request.GetBody.
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Service = "nppes"
//	cfg.UserAgent = "referral-agent/1.0"
//	client, err := httpclient.New(cfg)
package httpclient
