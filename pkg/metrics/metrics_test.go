package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/domain"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun(OutcomeSuccess, 2*time.Second)
	m.SkippedRun()
	m.Snapshot(domain.SnapshotSuccess)
	m.Snapshot(domain.SnapshotSuccess)
	m.Snapshot(domain.SnapshotFailed)
	m.Change()
	m.PersistFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailuresTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sneakpeak_run_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(OutcomeError, time.Second)
		m.SkippedRun()
		m.Snapshot(domain.SnapshotFailed)
		m.Change()
		m.PersistFailure()
	})
}
