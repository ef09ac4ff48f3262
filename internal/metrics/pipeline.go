package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query pipeline and ingestion metrics.
var (
	QueryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalograg",
			Name:      "query_outcomes_total",
			Help:      "Query pipeline outcomes",
		},
		[]string{"outcome"}, // "answered" / "rejected" / "failed"
	)

	QueryStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalograg",
			Name:      "query_stage_duration_seconds",
			Help:      "Duration of each query pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // "validate" / "retrieve" / "generate"
	)

	IngestedChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalograg",
			Name:      "ingested_chunks_total",
			Help:      "Number of chunks written by the ingestion pipeline",
		},
		[]string{"collection"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "catalograg",
			Name:      "chat_sessions_active",
			Help:      "Number of live chat sessions",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers query, ingestion and session metrics. Safe to call more than once.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueryOutcomesTotal)
	prometheus.MustRegister(QueryStageDuration)
	prometheus.MustRegister(IngestedChunksTotal)
	prometheus.MustRegister(ActiveSessions)
	pipelineMetricsRegistered = true
}
