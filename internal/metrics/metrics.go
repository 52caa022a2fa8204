// Package metrics defines the service-specific Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"fleetwatch/pkg/monitoring"
)

// Metrics holds the service-specific Prometheus collectors
type Metrics struct {
	IngestMessages    *prometheus.CounterVec // topic_kind, result
	IngestRetries     prometheus.Counter
	DeadLetters       prometheus.Counter
	IngestDuration    *prometheus.HistogramVec // topic_kind
	AnalyticsQueries  *prometheus.CounterVec   // query, result
	BroadcastMessages *prometheus.CounterVec   // type
	HubConnections    prometheus.Gauge
}

// New registers the service collectors on the shared metrics collector
func New(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		IngestMessages:    mc.NewCounter("ingest_messages_total", "Device messages processed by outcome", []string{"topic_kind", "result"}),
		IngestRetries:     mc.NewCounter("ingest_retries_total", "Event persistence retries", nil).WithLabelValues(),
		DeadLetters:       mc.NewCounter("ingest_dead_letters_total", "Messages sent to the dead-letter topic", nil).WithLabelValues(),
		IngestDuration:    mc.NewHistogram("ingest_duration_seconds", "Device message processing latency", []string{"topic_kind"}, nil),
		AnalyticsQueries:  mc.NewCounter("analytics_queries_total", "Aggregation queries by outcome", []string{"query", "result"}),
		BroadcastMessages: mc.NewCounter("websocket_broadcast_messages_total", "Messages fanned out to dashboard sessions", []string{"type"}),
		HubConnections:    mc.NewGauge("websocket_hub_connections_active", "Active dashboard WebSocket connections", nil).WithLabelValues(),
	}
}
