package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox publish outcomes.
const (
	OutboxPublished = "published"
	OutboxRetrying  = "retrying"
	OutboxTerminal  = "terminal"
)

// OutboxMetrics tracks the ledger event publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	backlog prometheus.Gauge
}

// NewOutboxMetrics registers the publisher metrics on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows processed by event type and outcome.",
	}, []string{"event_type", "outcome"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Unpublished outbox rows still eligible for delivery.",
	})
	reg.MustRegister(events, backlog)
	return &OutboxMetrics{events: events, backlog: backlog}
}

// ObserveEvent counts one processed row.
func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// SetBacklog records the unpublished row count.
func (m *OutboxMetrics) SetBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
