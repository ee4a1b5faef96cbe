package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.Completions.WithLabelValues("single", OutcomeComplete).Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Completions.WithLabelValues("single", OutcomeComplete)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Completions.WithLabelValues("single", OutcomeComplete)))
}

func TestWatchReady(t *testing.T) {
	m := New()
	ready := false
	m.WatchReady(func() bool { return ready })

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.Equal(t, 0.0, gauge(t, families, "bridge_session_ready"))

	ready = true
	families, err = m.Registry().Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, gauge(t, families, "bridge_session_ready"))
}

func gauge(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}
