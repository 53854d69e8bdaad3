// Package metrics exposes Prometheus instruments for detection cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sneakpeak/pkg/domain"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "sneakpeak"

// Run outcomes recorded by RunsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the detection cycle instruments. A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	SnapshotsTotal       *prometheus.CounterVec
	ChangesTotal         prometheus.Counter
	PersistFailuresTotal prometheus.Counter
	RunDurationSeconds   prometheus.Histogram
}

// NewMetrics creates and registers all instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "runs_total",
				Help:      "Detection cycles by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "snapshots_total",
				Help:      "Snapshots recorded by status",
			},
			[]string{"status"},
		),
		ChangesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "changes_total",
				Help:      "Changes detected",
			},
		),
		PersistFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "persist_failures_total",
				Help:      "Snapshot or change writes that failed",
			},
		),
		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a detection cycle",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
		),
	}
}

// ObserveRun records a finished cycle.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDurationSeconds.Observe(d.Seconds())
}

// SkippedRun records a trigger that found a cycle already running.
func (m *Metrics) SkippedRun() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(OutcomeSkipped).Inc()
}

// Snapshot records one stored snapshot.
func (m *Metrics) Snapshot(status domain.SnapshotStatus) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(string(status)).Inc()
}

// Change records one stored change.
func (m *Metrics) Change() {
	if m == nil {
		return
	}
	m.ChangesTotal.Inc()
}

// PersistFailure records a failed write.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailuresTotal.Inc()
}
