package mqtt311

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMetricsCounter(t *testing.T) {
	m := NewMemoryMetrics()

	c := m.Counter(MetricPacketsSent, MetricLabels{"type": "PUBLISH"})
	c.Inc()
	c.Add(2.5)

	// Same name and labels return the same counter.
	again := m.Counter(MetricPacketsSent, MetricLabels{"type": "PUBLISH"})
	assert.Equal(t, 3.5, again.Value())

	// Different labels are a different series.
	other := m.Counter(MetricPacketsSent, MetricLabels{"type": "PINGREQ"})
	assert.Equal(t, 0.0, other.Value())
}

func TestMemoryMetricsGauge(t *testing.T) {
	m := NewMemoryMetrics()

	g := m.Gauge(MetricActiveFlows, nil)
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()

	assert.Equal(t, 4.0, m.Gauge(MetricActiveFlows, nil).Value())
}

func TestNoOpMetrics(t *testing.T) {
	m := &NoOpMetrics{}
	assert.NotPanics(t, func() {
		c := m.Counter("x", nil)
		c.Inc()
		c.Add(1)
		g := m.Gauge("y", nil)
		g.Set(1)
		g.Inc()
		g.Dec()
	})
	assert.Equal(t, 0.0, m.Counter("x", nil).Value())
}

func TestPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	c := m.Counter(MetricReconnectAttempts, nil)
	c.Inc()
	c.Inc()

	g := m.Gauge(MetricConnected, nil)
	g.Set(1)

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if metric.GetCounter() != nil {
				byName[mf.GetName()] = metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				byName[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, byName[MetricReconnectAttempts])
	assert.Equal(t, 1.0, byName[MetricConnected])
}

func TestPrometheusMetricsReuse(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	a := m.Counter("mqtt_test_counter", MetricLabels{"k": "v"})
	b := m.Counter("mqtt_test_counter", MetricLabels{"k": "v"})
	a.Inc()
	b.Inc()

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, 2.0, families[0].GetMetric()[0].GetCounter().GetValue())
}
