package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventingMetrics counts the failure classes the messaging layer absorbs
// instead of propagating, so operators can detect elevated drop rates.
type EventingMetrics struct {
	publishFailure *prometheus.CounterVec
	consumerDrop   *prometheus.CounterVec
	pushFailure    *prometheus.CounterVec
	reconnects     prometheus.Counter
}

// NewEventingMetrics registers the eventing metrics on the provided registerer.
func NewEventingMetrics(reg prometheus.Registerer) *EventingMetrics {
	if reg == nil {
		return &EventingMetrics{}
	}
	publishFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_publish_failure_total",
		Help: "Publishes refused or failed by the broker (soft-fail path).",
	}, []string{"event_type"})
	consumerDrop := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_consumer_dropped_total",
		Help: "Messages dropped by the nack-without-requeue poison policy.",
	}, []string{"queue"})
	pushFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_delivery_failure_total",
		Help: "Broadcasts that could not be delivered to one live connection.",
	}, []string{"channel"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_reconnects_total",
		Help: "Times the broker supervisor re-established a lost connection.",
	})
	reg.MustRegister(publishFailure, consumerDrop, pushFailure, reconnects)
	return &EventingMetrics{
		publishFailure: publishFailure,
		consumerDrop:   consumerDrop,
		pushFailure:    pushFailure,
		reconnects:     reconnects,
	}
}

// IncPublishFailure counts one refused publish for the event type.
func (m *EventingMetrics) IncPublishFailure(eventType string) {
	if m == nil || m.publishFailure == nil {
		return
	}
	m.publishFailure.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncConsumerDrop counts one dropped message for the queue.
func (m *EventingMetrics) IncConsumerDrop(queue string) {
	if m == nil || m.consumerDrop == nil {
		return
	}
	m.consumerDrop.WithLabelValues(normalizeLabel(queue)).Inc()
}

// IncPushFailure counts one failed per-connection delivery for the channel.
func (m *EventingMetrics) IncPushFailure(channel string) {
	if m == nil || m.pushFailure == nil {
		return
	}
	m.pushFailure.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncReconnect counts one supervised reconnect.
func (m *EventingMetrics) IncReconnect() {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
