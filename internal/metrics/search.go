package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query path and indexing pipeline metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by scoring mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Candidates ranked per vector search",
			Buckets:   []float64{0, 10, 100, 500, 1000, 2500, 5000, 10000},
		},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search use case duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	IndexItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_items_total",
			Help:      "Entities handled by the indexing pipeline",
		},
		[]string{"kind", "status"}, // indexed / skipped / failed
	)

	IndexBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_batches_total",
			Help:      "Indexing batches by outcome",
		},
		[]string{"kind", "status"}, // ok / degraded / failed
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers query and indexing metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		SearchRequestsTotal,
		SearchCandidates,
		SearchDuration,
		IndexItemsTotal,
		IndexBatchesTotal,
	)
	searchMetricsRegistered = true
}
