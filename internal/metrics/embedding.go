package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of query embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "askdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Query embedding request duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors by kind",
		},
		[]string{"provider", "model", "kind"},
	)

	// EmbeddingCacheTotal counts lookups per tier ("memory", "redis") and result ("hit", "miss").
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "askdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers embedding metrics. Must be called once from main.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
	)
	embMetricsRegistered = true
}

// ObserveEmbeddingRequest records one finished embedding call.
func ObserveEmbeddingRequest(provider, model, status string, elapsed time.Duration) {
	EmbeddingRequestsTotal.WithLabelValues(provider, model, status).Inc()
	EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// CountEmbeddingError records a failed embedding call by kind.
func CountEmbeddingError(provider, model, kind string) {
	EmbeddingErrorsTotal.WithLabelValues(provider, model, kind).Inc()
}

// AddEmbeddingTokens records reported token usage. Providers that report none are skipped.
func AddEmbeddingTokens(provider, model string, prompt, total int) {
	if total <= 0 {
		return
	}
	EmbeddingTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	EmbeddingTokensTotal.WithLabelValues(provider, model, "total").Add(float64(total))
}
