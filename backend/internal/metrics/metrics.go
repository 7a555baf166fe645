package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fact store
	FactStoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegraph_factstore_query_duration_seconds",
			Help:    "Duration of guarded fact store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	FactStoreTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegraph_factstore_timeouts_total",
			Help: "Fact store queries abandoned after exceeding the time budget",
		},
		[]string{"operation"},
	)

	// Embedding service
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegraph_embedding_requests_total",
			Help: "Embedding service calls by result",
		},
		[]string{"result"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinegraph_embedding_cache_hits_total",
			Help: "Embeddings served from the in-process cache",
		},
	)

	// Indexes
	IndexVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinegraph_index_vectors",
			Help: "Vectors held by the current snapshot, per space",
		},
		[]string{"space"},
	)

	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegraph_snapshot_reloads_total",
			Help: "Snapshot reload attempts by result",
		},
		[]string{"result"},
	)

	// Recommendation requests
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegraph_recommendation_requests_total",
			Help: "Recommendation requests by mode and outcome status",
		},
		[]string{"mode", "status"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegraph_recommendation_duration_seconds",
			Help:    "End-to-end latency of recommendation requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"mode"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegraph_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveQuery records a fact store query latency
func ObserveQuery(operation string, start time.Time) {
	FactStoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveRecommendation records a request latency and its outcome status
func ObserveRecommendation(mode, status string, start time.Time) {
	RecommendationRequests.WithLabelValues(mode, status).Inc()
	RecommendationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
