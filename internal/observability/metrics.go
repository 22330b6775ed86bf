package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvloznov/subscription-radar/internal/detection"
)

const namespace = "subscription_radar"

// Metrics records detection and job metrics in a Prometheus registry.
// It implements detection.Recorder.
type Metrics struct {
	registry           *prometheus.Registry
	analyses           *prometheus.CounterVec
	analysisDuration   prometheus.Histogram
	clusteringFallback prometheus.Counter
	classifierFailures prometheus.Counter
	detections         *prometheus.CounterVec
	jobs               *prometheus.CounterVec
	skippedRows        prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Statement analyses by outcome status.",
		}, []string{"status"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one detection run.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		clusteringFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clustering_fallbacks_total",
			Help:      "Runs where merchant clustering fell back to identity grouping.",
		}),
		classifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Runs where the recurrence classifier failed closed.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detected recurring payments by pattern type.",
		}, []string{"pattern_type"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background analysis jobs by final status.",
		}, []string{"status"}),
		skippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_rows_skipped_total",
			Help:      "Statement rows dropped for bad dates, amounts or descriptions.",
		}),
	}
	m.registry.MustRegister(
		m.analyses,
		m.analysisDuration,
		m.clusteringFallback,
		m.classifierFailures,
		m.detections,
		m.jobs,
		m.skippedRows,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveAnalysis implements detection.Recorder.
func (m *Metrics) ObserveAnalysis(status string, elapsed time.Duration) {
	m.analyses.WithLabelValues(status).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
}

// ClusteringFallback implements detection.Recorder.
func (m *Metrics) ClusteringFallback() { m.clusteringFallback.Inc() }

// ClassifierFailure implements detection.Recorder.
func (m *Metrics) ClassifierFailure() { m.classifierFailures.Inc() }

// Detections implements detection.Recorder.
func (m *Metrics) Detections(pattern detection.PatternType, n int) {
	m.detections.WithLabelValues(string(pattern)).Add(float64(n))
}

// JobFinished counts a background job reaching a terminal status.
func (m *Metrics) JobFinished(status string) {
	m.jobs.WithLabelValues(status).Inc()
}

// RowsSkipped counts statement rows dropped during ingestion.
func (m *Metrics) RowsSkipped(n int) {
	m.skippedRows.Add(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
