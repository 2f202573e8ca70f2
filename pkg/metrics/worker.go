package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records conversation-pipeline outcomes for the event worker.
type WorkerMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	retries   prometheus.Counter
	sends     *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_event_duration_seconds",
		Help:    "Duration of conversation event processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_events_processed",
		Help: "Processed conversation events by outcome.",
	}, []string{"event_type", "outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_event_retries",
		Help: "Retry attempts across all conversation events.",
	})
	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_message_sends",
		Help: "Outbound message attempts by result.",
	}, []string{"result"})
	reg.MustRegister(duration, processed, retries, sends)
	return &WorkerMetrics{
		duration:  duration,
		processed: processed,
		retries:   retries,
		sends:     sends,
	}
}

// ObserveDuration records processing time for an event type.
func (m *WorkerMetrics) ObserveDuration(eventType string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(d.Seconds())
}

// IncProcessed counts a finished event with its outcome (success, failed, skipped).
func (m *WorkerMetrics) IncProcessed(eventType, outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncRetry counts one retry attempt.
func (m *WorkerMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// IncSend counts one outbound message attempt by result (sent, retryable_error,
// terminal_error, auth_error, rejected).
func (m *WorkerMetrics) IncSend(result string) {
	if m == nil || m.sends == nil {
		return
	}
	m.sends.WithLabelValues(normalizeLabel(result)).Inc()
}
