// Package metrics exposes the registry's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds an isolated Prometheus registry and the registry-core
// collectors. An isolated registry avoids collisions when the core is
// embedded in a larger process.
type Metrics struct {
	Registry *prometheus.Registry

	registrations    *prometheus.CounterVec
	compatChecks     *prometheus.CounterVec
	lookups          *prometheus.CounterVec
	registerDuration *prometheus.HistogramVec
}

// New creates the metrics set, registered together with the standard Go and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_registrations_total",
			Help: "Schema registration attempts by format and outcome",
		}, []string{"format", "outcome"}),
		compatChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_compatibility_checks_total",
			Help: "Compatibility evaluations by mode and result",
		}, []string{"mode", "result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_lookups_total",
			Help: "Read operations by kind",
		}, []string{"kind"}),
		registerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_register_duration_seconds",
			Help:    "End-to-end duration of register operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
	}

	registry.MustRegister(
		m.registrations,
		m.compatChecks,
		m.lookups,
		m.registerDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRegistration records one register attempt. Nil-safe so the façade
// can run without instrumentation in tests.
func (m *Metrics) ObserveRegistration(format, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(format, outcome).Inc()
	m.registerDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
}

// ObserveCompatCheck records one compatibility evaluation.
func (m *Metrics) ObserveCompatCheck(mode, result string) {
	if m == nil {
		return
	}
	m.compatChecks.WithLabelValues(mode, result).Inc()
}

// ObserveLookup records one read operation.
func (m *Metrics) ObserveLookup(kind string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(kind).Inc()
}
