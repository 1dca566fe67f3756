package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var turnsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "referral_agent_turns_total",
		Help: "Agent turns by final status (completed, input_required, error, unparsed, failed)",
	},
	[]string{"status"},
)
