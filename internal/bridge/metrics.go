package bridge

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "stockbarcode_bridge"

// Metrics are the bridge's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Connections *prometheus.GaugeVec
	Messages    *prometheus.CounterVec
	Scans       *prometheus.CounterVec
	Vibrations  prometheus.Counter
	Rejected    prometheus.Counter
}

// NewMetrics registers the bridge collectors on a private registry, along
// with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Open websocket connections by role.",
		}, []string{"role"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Messages handled by direction and type.",
		}, []string{"direction", "type"}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scans_total",
			Help:      "Scans received, by whether any session got them.",
		}, []string{"outcome"}),
		Vibrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "vibrations_total",
			Help:      "Vibrate requests forwarded to scanners.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_messages_total",
			Help:      "Messages that failed validation.",
		}),
	}
	reg.MustRegister(
		m.Connections, m.Messages, m.Scans, m.Vibrations, m.Rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
