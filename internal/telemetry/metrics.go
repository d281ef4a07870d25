// Package telemetry holds the Prometheus metrics recorded while analyzing
// exports. The CLI is short-lived, so metrics are written to a node-exporter
// textfile at the end of a run rather than served over HTTP.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"spendscore-service/pkg/errors"
)

const namespace = "spendscore"

// Row kinds reported by RecordRows
const (
	RowsValid    = "valid"
	RowsSkipped  = "skipped"
	RowsFiltered = "filtered"
)

// Metrics owns a private registry and every collector registered in it.
// All methods are safe for concurrent use.
type Metrics struct {
	// Registry is exposed for gathering and tests.
	Registry *prometheus.Registry

	analyses *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
	scores   *prometheus.HistogramVec
	tiers    *prometheus.CounterVec
}

// NewMetrics creates a dedicated registry and registers the analysis metrics
// in it, so several instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Exports analyzed, by source format and outcome.",
			},
			[]string{"format", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Time to normalize and score one export.",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"format"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Export rows read, by source format and kind.",
			},
			[]string{"format", "kind"},
		),
		scores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "final_score",
				Help:      "Distribution of final SpendScores.",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"format"},
		),
		tiers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_total",
				Help:      "Scored exports, by tier.",
			},
			[]string{"tier"},
		),
	}
}

// RecordAnalysis counts one finished analysis and observes its duration
func (m *Metrics) RecordAnalysis(format, outcome string, elapsed time.Duration) {
	m.analyses.WithLabelValues(format, outcome).Inc()
	m.duration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// RecordRows adds the row counts of one parsed export
func (m *Metrics) RecordRows(format string, valid, skipped, filtered int) {
	m.rows.WithLabelValues(format, RowsValid).Add(float64(valid))
	m.rows.WithLabelValues(format, RowsSkipped).Add(float64(skipped))
	m.rows.WithLabelValues(format, RowsFiltered).Add(float64(filtered))
}

// RecordScore observes a final score and counts its tier
func (m *Metrics) RecordScore(format, tier string, score int) {
	m.scores.WithLabelValues(format).Observe(float64(score))
	m.tiers.WithLabelValues(tier).Inc()
}

// WriteTextfile writes every metric in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, "", err).
			WithContext("metrics_file", path).
			WithSuggestion("check that the metrics directory exists and is writable")
	}
	return nil
}
