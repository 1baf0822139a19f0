// Package metrics exposes Prometheus counters for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultNotFound    = "not_registered"
	ResultSkipped     = "skipped"
	ResultRateLimited = "rate_limited"
	ResultDropped     = "dropped"
)

// Metrics groups the relay's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent    *prometheus.CounterVec
	AcksPersisted   *prometheus.CounterVec
	LifecycleEvents *prometheus.CounterVec
	Connections     prometheus.Gauge
	SessionReady    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warelay",
			Name:      "messages_sent_total",
			Help:      "Outbound text messages by result.",
		}, []string{"result"}),
		AcksPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warelay",
			Name:      "acks_persisted_total",
			Help:      "Acknowledgement updates by result.",
		}, []string{"result"}),
		LifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warelay",
			Name:      "lifecycle_events_total",
			Help:      "Messaging client lifecycle events by type.",
		}, []string{"event"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warelay",
			Name:      "realtime_connections",
			Help:      "Open real-time browser connections.",
		}),
		SessionReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warelay",
			Name:      "session_ready",
			Help:      "1 while the session marker exists.",
		}),
	}
	m.registry.MustRegister(
		m.MessagesSent,
		m.AcksPersisted,
		m.LifecycleEvents,
		m.Connections,
		m.SessionReady,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
