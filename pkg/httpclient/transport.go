package httpclient

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tombee/referral-agent/pkg/httpclient"

// instrumentedTransport wraps a single attempt with:
// - User-Agent and X-Request-ID headers
// - a client span
// - a sanitized request log line
// - request counters and latency
type instrumentedTransport struct {
	base      http.RoundTripper
	service   string
	userAgent string
	tracer    trace.Tracer
}

func newInstrumentedTransport(base http.RoundTripper, service, userAgent string) *instrumentedTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &instrumentedTransport{
		base:      base,
		service:   service,
		userAgent: userAgent,
		tracer:    otel.Tracer(tracerName),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logURL := sanitizeURL(req.URL)

	ctx, span := t.tracer.Start(req.Context(), t.service+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", logURL),
			attribute.String("upstream.service", t.service),
		),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	out := req.Clone(ctx)
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.userAgent)
	}
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", uuid.NewString())
	}

	resp, err := t.base.RoundTrip(out)
	elapsed := time.Since(start)
	requestDuration.WithLabelValues(t.service).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		upstreamRequests.WithLabelValues(t.service, "error").Inc()
		slog.WarnContext(ctx, "http request failed",
			"service", t.service,
			"method", req.Method,
			"url", logURL,
			"duration_ms", elapsed.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	upstreamRequests.WithLabelValues(t.service, strconv.Itoa(resp.StatusCode)).Inc()

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "http request",
		"service", t.service,
		"method", req.Method,
		"url", logURL,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)

	return resp, nil
}
