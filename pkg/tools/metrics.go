package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusError   = "error"
	statusInvalid = "invalid"
	statusUnknown = "unknown"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_tool_calls_total",
			Help: "Tool calls by tool and outcome (ok, failed, error, invalid, unknown)",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_tool_duration_seconds",
			Help:    "Tool execution latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)
)
