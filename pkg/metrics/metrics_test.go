package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersWithGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("careflow", reg)

	m.JourneyTransitions.WithLabelValues("order", "ok").Inc()
	m.OutboxQueueSize.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JourneyTransitions.WithLabelValues("order", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxQueueSize))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["careflow_journey_transitions_total"])
	assert.True(t, names["careflow_outbox_queue_size"])
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("careflow", prometheus.NewRegistry())
		NewMetrics("careflow", prometheus.NewRegistry())
	})
}
