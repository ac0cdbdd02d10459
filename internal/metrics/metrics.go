// Package metrics exposes Prometheus counters for the chat and ticket paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	sweptSessions  prometheus.Counter
	ticketEvents   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdesk",
			Name:      "chat_requests_total",
			Help:      "Chat requests by tenant and outcome.",
		}, []string{"tenant", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatdesk",
			Name:      "llm_request_duration_seconds",
			Help:      "Language model call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatdesk",
			Name:      "sessions_active",
			Help:      "Sessions held in memory after the last sweep.",
		}),
		sweptSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatdesk",
			Name:      "sessions_swept_total",
			Help:      "Sessions removed for inactivity.",
		}),
		ticketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatdesk",
			Name:      "ticket_events_total",
			Help:      "Ticket events published.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chatRequests, m.llmDuration, m.activeSessions, m.sweptSessions, m.ticketEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ChatRequest(tenant, outcome string) {
	m.chatRequests.WithLabelValues(tenant, outcome).Inc()
}

func (m *Metrics) LLMCall(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.llmDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) TicketEvent(name string) {
	m.ticketEvents.WithLabelValues(name).Inc()
}

// Sweep matches session.Sweeper's Observe hook.
func (m *Metrics) Sweep(removed, active int) {
	m.sweptSessions.Add(float64(removed))
	m.activeSessions.Set(float64(active))
}
