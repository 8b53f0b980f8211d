package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tool invocation metrics.
var (
	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "tool_invocations_total",
			Help:      "Total number of retrieval tool invocations",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "askdex",
			Name:      "tool_duration_seconds",
			Help:      "Retrieval tool wall time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "answers_total",
			Help:      "Total number of answers by mode",
		},
		[]string{"mode"},
	)
)

var toolMetricsRegistered bool

// RegisterToolMetrics registers tool and answer metrics. Must be called once from main.
func RegisterToolMetrics() {
	if toolMetricsRegistered {
		return
	}
	prometheus.MustRegister(ToolInvocationsTotal)
	prometheus.MustRegister(ToolDuration)
	prometheus.MustRegister(AnswersTotal)
	toolMetricsRegistered = true
}

// ObserveTool records one finished tool invocation.
func ObserveTool(tool, status string, elapsed time.Duration) {
	ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
