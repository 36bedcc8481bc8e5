package mqtt311

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics adapts the Metrics interface onto a prometheus
// registry, so the client's counters and gauges can be scraped alongside
// the rest of a service's metrics.
type PrometheusMetrics struct {
	registerer prometheus.Registerer

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// NewPrometheusMetrics creates an adapter registering on the given
// registerer. A nil registerer uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registerer: registerer,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

// Counter returns a counter metric.
func (p *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	key := labelsKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[key]; ok {
		return promCounter{c}
	}

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		ConstLabels: prometheus.Labels(labels),
	})
	if err := p.registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			c = are.ExistingCollector.(prometheus.Counter)
		}
	}
	p.counters[key] = c

	return promCounter{c}
}

// Gauge returns a gauge metric.
func (p *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	key := labelsKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[key]; ok {
		return promGauge{g}
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		ConstLabels: prometheus.Labels(labels),
	})
	if err := p.registerer.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	p.gauges[key] = g

	return promGauge{g}
}

// promCounter wraps a prometheus counter. Prometheus counters cannot be
// read back, so Value always reports zero; scrape the registry instead.
type promCounter struct {
	c prometheus.Counter
}

func (p promCounter) Inc()              { p.c.Inc() }
func (p promCounter) Add(delta float64) { p.c.Add(delta) }
func (p promCounter) Value() float64    { return 0 }

type promGauge struct {
	g prometheus.Gauge
}

func (p promGauge) Set(value float64) { p.g.Set(value) }
func (p promGauge) Inc()              { p.g.Inc() }
func (p promGauge) Dec()              { p.g.Dec() }
func (p promGauge) Value() float64    { return 0 }
