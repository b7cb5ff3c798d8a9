// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// QueueDepth tracks the number of conversations per classification,
	// computed from the same predicates that drive the filtered views.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Conversations per queue classification",
		},
		[]string{"classification"},
	)

	// EventsProcessed tracks real-time events applied to the table.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_processed_total",
			Help: "Real-time events applied, by kind",
		},
		[]string{"kind"},
	)

	// EventsDropped tracks events discarded before application.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_dropped_total",
			Help: "Real-time events dropped, by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// SnapshotDuration tracks full snapshot fetch duration.
	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_fetch_duration_seconds",
			Help:    "Authoritative snapshot fetch duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	// ConversationsTracked tracks the size of the conversation table.
	ConversationsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversations_tracked",
			Help: "Conversations currently held in the table",
		},
	)

	// ConversationsSuppressed tracks the size of the suppression set.
	ConversationsSuppressed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversations_suppressed",
			Help: "Conversations hidden by optimistic suppression",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordEvent records an applied real-time event.
func RecordEvent(kind string) {
	EventsProcessed.WithLabelValues(kind).Inc()
}

// RecordDroppedEvent records a discarded real-time event.
func RecordDroppedEvent(kind, reason string) {
	EventsDropped.WithLabelValues(kind, reason).Inc()
}

// RecordSnapshot records a snapshot fetch attempt.
func RecordSnapshot(status string, duration float64) {
	SnapshotDuration.WithLabelValues(status).Observe(duration)
}

// SetQueueDepth sets the gauge for one classification.
func SetQueueDepth(classification string, n int) {
	QueueDepth.WithLabelValues(classification).Set(float64(n))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
