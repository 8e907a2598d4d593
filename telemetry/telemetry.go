package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry *prometheus.Registry

// Counter, Gauge and CounterVec mirror the prometheus types so that code can
// record metrics unconditionally; until Initialize is called every
// constructor returns a noop implementation.
type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

type CounterVec interface {
	With(labelValues ...string) Counter
}

type NoopStat struct{}

func (NoopStat) Inc()        {}
func (NoopStat) Add(float64) {}
func (NoopStat) Set(float64) {}
func (NoopStat) Dec()        {}
func (NoopStat) Sub(float64) {}

type noopCounterVec struct{}

func (noopCounterVec) With(labelValues ...string) Counter { return NoopStat{} }

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

// Initialize sets up the process-wide metrics registry. Call once at daemon
// startup, before any component records a metric that must be exported.
func Initialize() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	initMetrics()
}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tidemark",
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(c)
	return c
}

func NewCounterVec(name, help string, labels ...string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidemark",
		Name:      name,
		Help:      help,
	}, labels)
	registry.MustRegister(c)
	return &prometheusCounterVec{vec: c}
}

func NewGauge(name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tidemark",
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(g)
	return g
}

// Handler exposes the registry in the Prometheus text format. Returns 404s
// when telemetry was never initialized.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
