package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_llm_tokens_total",
			Help: "LLM tokens consumed, by provider and direction (input, output)",
		},
		[]string{"provider", "direction"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_llm_requests_total",
			Help: "LLM completion requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)
)

// RecordUsage adds a completed request's token usage to the metrics.
func RecordUsage(provider string, usage TokenUsage) {
	requestsTotal.WithLabelValues(provider, "ok").Inc()
	tokensTotal.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
	tokensTotal.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
}

// RecordFailure counts a failed request.
func RecordFailure(provider string) {
	requestsTotal.WithLabelValues(provider, "error").Inc()
}
