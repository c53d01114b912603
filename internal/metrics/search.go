package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests by produced search type",
		},
		[]string{"search_type"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"search_type"},
	)

	SearchResultsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievex",
			Name:      "search_results_returned",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"search_type"},
	)

	RetrievalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "retrieval_errors_total",
			Help:      "Failures of individual retrieval paths",
		},
		[]string{"path"}, // "vector" / "keyword" / "embedding"
	)

	FunnelStageCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrievex",
			Name:      "funnel_stage_candidates",
			Help:      "Candidate count after each funnel stage",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 200, 500},
		},
		[]string{"stage"},
	)

	FunnelStageSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrievex",
			Name:      "funnel_stage_skipped_total",
			Help:      "Funnel stages skipped, by reason",
		},
		[]string{"stage", "reason"}, // reason: "disabled" / "failed" / "safety_valve"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResultsReturned)
	prometheus.MustRegister(RetrievalErrorsTotal)
	prometheus.MustRegister(FunnelStageCandidates)
	prometheus.MustRegister(FunnelStageSkippedTotal)
	searchMetricsRegistered = true
}
