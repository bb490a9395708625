// Package metrics exposes Prometheus instrumentation for the analysis
// service.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AnalysisMetrics tracks request-level analysis outcomes.
type AnalysisMetrics struct {
	analysesTotal     *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	scorerUnavailable prometheus.Counter
	storedAnalyses    *prometheus.GaugeVec
}

// NewAnalysisMetrics registers and returns analysis metrics under the given
// namespace. Call once per process: promauto panics on re-registration.
func NewAnalysisMetrics(namespace string) *AnalysisMetrics {
	return &AnalysisMetrics{
		analysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Number of URL analyses performed, by verdict.",
		}, []string{"verdict"}),
		analysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end duration of URL analyses.",
			Buckets:   prometheus.DefBuckets,
		}),
		scorerUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_unavailable_total",
			Help:      "Number of analyses that completed without a model score.",
		}),
		storedAnalyses: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_analyses",
			Help:      "Number of analyses currently stored, by verdict.",
		}, []string{"verdict"}),
	}
}

// ObserveAnalysis records one completed analysis.
func (m *AnalysisMetrics) ObserveAnalysis(verdict string, seconds float64) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(verdict).Inc()
	m.analysisDuration.Observe(seconds)
}

// ObserveScorerUnavailable records an analysis that got no model score.
func (m *AnalysisMetrics) ObserveScorerUnavailable() {
	if m == nil {
		return
	}
	m.scorerUnavailable.Inc()
}

// SetStoredCounts refreshes the stored-analysis gauges from database counts.
func (m *AnalysisMetrics) SetStoredCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for verdict, count := range counts {
		m.storedAnalyses.WithLabelValues(verdict).Set(float64(count))
	}
}

// DatabaseMetrics tracks connection pool health.
type DatabaseMetrics struct {
	openConnections prometheus.Gauge
	inUse           prometheus.Gauge
	idle            prometheus.Gauge
	waitCount       prometheus.Gauge
}

// NewDatabaseMetrics registers and returns database pool metrics under the
// given namespace.
func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		openConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_open_connections",
			Help:      "Open connections in the database pool.",
		}),
		inUse: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_in_use_connections",
			Help:      "Connections currently in use.",
		}),
		idle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_idle_connections",
			Help:      "Idle connections in the pool.",
		}),
		waitCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_wait_count",
			Help:      "Total number of connections waited for.",
		}),
	}
}

// UpdateDBStats refreshes the pool gauges from sql.DBStats.
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.openConnections.Set(float64(stats.OpenConnections))
	m.inUse.Set(float64(stats.InUse))
	m.idle.Set(float64(stats.Idle))
	m.waitCount.Set(float64(stats.WaitCount))
}
