// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the webhook notification pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the metric instruments for the notification pipeline.
type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	RetrySweepsTotal  prometheus.Counter
	SweepRecovered    prometheus.Counter
	SweepEscalated    prometheus.Counter
	DLQSize           prometheus.Gauge
	PendingDeliveries prometheus.Gauge
	BreakerOpenTotal  *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
	IdempotentReplays prometheus.Counter
}

// NewMetrics creates the metric instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer for standalone usage, or a private
// registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slipnotify_events_total",
			Help: "Slip events accepted for webhook fan-out, by event type.",
		}, []string{"event_type"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slipnotify_deliveries_total",
			Help: "Webhook delivery attempts by final status.",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slipnotify_delivery_latency_seconds",
			Help:    "Latency of webhook HTTP calls.",
			Buckets: prometheus.DefBuckets,
		}),
		RetrySweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slipnotify_retry_sweeps_total",
			Help: "Completed retry sweeps.",
		}),
		SweepRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slipnotify_sweep_recovered_total",
			Help: "Pending deliveries recovered by the retry sweep.",
		}),
		SweepEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slipnotify_sweep_escalated_total",
			Help: "Pending deliveries escalated to the dead letter queue.",
		}),
		DLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slipnotify_dlq_size",
			Help: "Unresolved entries in the dead letter queue.",
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slipnotify_pending_deliveries",
			Help: "Deliveries awaiting retry.",
		}),
		BreakerOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slipnotify_breaker_open_total",
			Help: "Deliveries short-circuited by an open circuit breaker.",
		}, []string{"subscriber_id"}),
		RateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slipnotify_ratelimit_rejected_total",
			Help: "Inbound requests rejected by the rate limiter.",
		}),
		IdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slipnotify_idempotent_replays_total",
			Help: "Inbound requests answered from the idempotency cache.",
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.RetrySweepsTotal,
		m.SweepRecovered,
		m.SweepEscalated,
		m.DLQSize,
		m.PendingDeliveries,
		m.BreakerOpenTotal,
		m.RateLimitRejected,
		m.IdempotentReplays,
	)

	return m
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordEvent records an accepted slip event.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
}
