package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts answered questions by mode and outcome.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseboard_agent_requests_total",
		Help: "Agent requests by mode and outcome",
	}, []string{"mode", "outcome"})

	// roundsPerRequest tracks how many model calls a request needed.
	roundsPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caseboard_agent_rounds",
		Help:    "Model rounds used per agent request",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	// toolCallsTotal counts dispatched tool calls by tool and status.
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseboard_agent_tool_calls_total",
		Help: "Tool calls dispatched by the agent by tool and status",
	}, []string{"tool", "status"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caseboard_agent_tool_duration_seconds",
		Help:    "Tool call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"tool"})
)

const (
	outcomeAnswered    = "answered"
	outcomeLimit       = "iteration_limit"
	outcomeUnparseable = "unparseable"
	outcomeError       = "error"

	toolStatusOK      = "ok"
	toolStatusError   = "error"
	toolStatusUnknown = "unknown"
)
