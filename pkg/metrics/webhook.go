package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records ingest-path outcomes for the webhook receiver.
type WebhookMetrics struct {
	received        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	duplicates      prometheus.Counter
	dispatched      prometheus.Counter
	dispatchDropped prometheus.Counter
}

// NewWebhookMetrics registers the webhook receiver metrics on the provided
// registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Webhook deliveries accepted past signature verification.",
	}, []string{"platform"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_rejected",
		Help: "Webhook deliveries rejected before dispatch.",
	}, []string{"platform", "reason"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook deliveries skipped by the idempotency guard.",
	})
	dispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_dispatched",
		Help: "Webhook events handed to the async queue.",
	})
	dispatchDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_dispatch_dropped",
		Help: "Webhook events acknowledged but not enqueued because publish failed.",
	})
	reg.MustRegister(received, rejected, duplicates, dispatched, dispatchDropped)
	return &WebhookMetrics{
		received:        received,
		rejected:        rejected,
		duplicates:      duplicates,
		dispatched:      dispatched,
		dispatchDropped: dispatchDropped,
	}
}

// IncReceived counts an accepted delivery for the platform.
func (m *WebhookMetrics) IncReceived(platform string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(platform)).Inc()
}

// IncRejected counts a rejected delivery with the rejection reason.
func (m *WebhookMetrics) IncRejected(platform, reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(platform), normalizeLabel(reason)).Inc()
}

// IncDuplicate counts a delivery skipped by the idempotency guard.
func (m *WebhookMetrics) IncDuplicate() {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.Inc()
}

// IncDispatched counts an event handed to the queue.
func (m *WebhookMetrics) IncDispatched() {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.Inc()
}

// IncDispatchDropped counts an event acknowledged to the platform but lost
// because the queue publish failed.
func (m *WebhookMetrics) IncDispatchDropped() {
	if m == nil || m.dispatchDropped == nil {
		return
	}
	m.dispatchDropped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
