package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and generation Prometheus metrics.
var (
	RetrievalSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sopqa",
			Name:      "retrieval_searches_total",
			Help:      "Retrieval attempts by outcome",
		},
		[]string{"outcome"}, // "found" / "no_context"
	)

	RetrievalDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sopqa",
			Name:      "retrieval_documents",
			Help:      "Documents surviving threshold filtering per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	IndexedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sopqa",
			Name:      "indexed_chunks_total",
			Help:      "Chunks added to the vector index",
		},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sopqa",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sopqa",
			Name:      "generation_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval and generation metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalSearchesTotal)
	prometheus.MustRegister(RetrievalDocuments)
	prometheus.MustRegister(IndexedChunksTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	retrievalMetricsRegistered = true
}
