package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_queries_total",
			Help: "Total number of natural-language query requests by outcome.",
		},
		[]string{"outcome"},
	)
	generationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_generation_latency_seconds",
			Help:    "SQL generation latency against the model backend.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	streamedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_streamed_rows_total",
			Help: "Total number of rows delivered through streaming responses.",
		},
	)
	exportJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_export_jobs_total",
			Help: "Total number of export jobs by terminal status.",
		},
		[]string{"status"},
	)
	exportedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_exported_rows_total",
			Help: "Total number of data rows written to export files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		generationLatencySeconds,
		streamedRowsTotal,
		exportJobsTotal,
		exportedRowsTotal,
	)
}

func IncrementQueries(outcome string) {
	queriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveGenerationLatency(elapsed time.Duration) {
	generationLatencySeconds.Observe(elapsed.Seconds())
}

func AddStreamedRows(count int) {
	streamedRowsTotal.Add(float64(count))
}

func IncrementExportJobs(status string) {
	exportJobsTotal.WithLabelValues(status).Inc()
}

func AddExportedRows(count int64) {
	exportedRowsTotal.Add(float64(count))
}
