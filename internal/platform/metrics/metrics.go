package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SearchRequests   prometheus.Counter
	PublishConflicts prometheus.Counter

	ImporterRowsProcessed *prometheus.CounterVec
	ImporterRowsFailed    *prometheus.CounterVec
	ImporterRunDuration   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SearchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pubrec_search_requests_total",
			Help: "Total number of record search requests served",
		}),
		PublishConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pubrec_publish_conflicts_total",
			Help: "Total number of publish/unpublish calls rejected with a conflict",
		}),
		ImporterRowsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pubrec_importer_rows_processed_total",
			Help: "Feed rows reconciled successfully",
		}, []string{"feed"}),
		ImporterRowsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pubrec_importer_rows_failed_total",
			Help: "Feed rows that failed and were recorded in the task audit",
		}, []string{"feed"}),
		ImporterRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubrec_importer_run_duration_seconds",
			Help:    "Wall-clock duration of reconciliation runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"feed"}),
	}
}

// ObserveRun records the outcome counters for one reconciliation run.
func (m *Metrics) ObserveRun(feed string, processed, failed int, elapsed time.Duration) {
	m.ImporterRowsProcessed.WithLabelValues(feed).Add(float64(processed))
	m.ImporterRowsFailed.WithLabelValues(feed).Add(float64(failed))
	m.ImporterRunDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
}
