package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what a run did. A nil registerer creates unregistered
// collectors.
type Metrics struct {
	testCases   *prometheus.CounterVec
	batches     prometheus.Counter
	rows        prometheus.Counter
	pending     prometheus.Gauge
	ingestWait  prometheus.Histogram
	runDuration prometheus.Histogram
}

// NewMetrics creates the executor metrics and registers them with r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		testCases: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "grasp_test_cases_total",
			Help: "Test cases seen, by outcome (cached, passed, failed).",
		}, []string{"outcome"}),
		batches: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "grasp_batches_submitted_total",
			Help: "Table batches written to the Engine.",
		}),
		rows: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "grasp_rows_submitted_total",
			Help: "Fact rows written to the Engine.",
		}),
		pending: promauto.With(r).NewGauge(prometheus.GaugeOpts{
			Name: "grasp_test_cases_pending",
			Help: "Test cases whose batches are still being ingested.",
		}),
		ingestWait: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Name:    "grasp_ingest_wait_seconds",
			Help:    "Time from submission until a test case's batches all completed.",
			Buckets: prometheus.DefBuckets,
		}),
		runDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Name:    "grasp_run_duration_seconds",
			Help:    "Duration of Execute calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
