package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_upstream_requests_total",
			Help: "Upstream HTTP attempts by service and status code (or \"error\")",
		},
		[]string{"service", "status"},
	)

	upstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_upstream_retries_total",
			Help: "Retryable upstream failures by service and reason",
		},
		[]string{"service", "reason"},
	)

	upstreamExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_upstream_retries_exhausted_total",
			Help: "Requests that failed after using every attempt",
		},
		[]string{"service"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_upstream_request_duration_seconds",
			Help:    "Latency of individual upstream attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func recordRetry(service, reason string, final bool) {
	if final {
		upstreamExhausted.WithLabelValues(service).Inc()
		return
	}
	upstreamRetries.WithLabelValues(service, reason).Inc()
}
