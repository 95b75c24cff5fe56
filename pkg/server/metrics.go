package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	activeConnections prometheus.Gauge
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter

	// Room metrics
	activeRooms  prometheus.Gauge
	roomsCreated prometheus.Counter

	// Message metrics
	messagesReceived *prometheus.CounterVec // by message type
	messagesSent     *prometheus.CounterVec // by message type
	decodeErrors     prometheus.Counter

	// Broadcast metrics
	broadcastFanout   prometheus.Histogram
	recipientsSkipped prometheus.Counter
	sendFailures      prometheus.Counter
}

// NewMetrics creates a new metrics instance backed by its own registry, so
// tests can create servers side by side without duplicate registration.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrawl_active_connections",
				Help: "Current number of live client connections",
			},
		),
		connectionsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_connections_opened_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_connections_closed_total",
				Help: "Total number of client connections torn down",
			},
		),
		activeRooms: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrawl_active_rooms",
				Help: "Current number of rooms",
			},
		),
		roomsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_rooms_created_total",
				Help: "Total number of rooms created",
			},
		),
		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrawl_messages_received_total",
				Help: "Total number of messages received from clients by type",
			},
			[]string{"type"},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrawl_messages_sent_total",
				Help: "Total number of messages sent to clients by type",
			},
			[]string{"type"},
		),
		decodeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_decode_errors_total",
				Help: "Total number of inbound messages dropped as undecodable",
			},
		),
		broadcastFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrawl_broadcast_fanout",
				Help:    "Number of clients that received each broadcast message",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		recipientsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_recipients_skipped_total",
				Help: "Total number of fan-out recipients skipped for lacking a live connection",
			},
		),
		sendFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scrawl_send_failures_total",
				Help: "Total number of failed writes to client connections",
			},
		),
	}
}

// Registry returns the prometheus registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordActiveConnections updates the live connection count
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnectionOpened increments the accepted connection counter
func (m *Metrics) RecordConnectionOpened() {
	m.connectionsOpened.Inc()
}

// RecordConnectionClosed increments the torn-down connection counter
func (m *Metrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// RecordActiveRooms updates the room count
func (m *Metrics) RecordActiveRooms(count int) {
	m.activeRooms.Set(float64(count))
}

// RecordRoomCreated increments the room creation counter
func (m *Metrics) RecordRoomCreated() {
	m.roomsCreated.Inc()
}

// RecordMessageReceived increments the message received counter for a type
func (m *Metrics) RecordMessageReceived(messageType string) {
	m.messagesReceived.WithLabelValues(messageType).Inc()
}

// RecordMessageSent increments the message sent counter for a type
func (m *Metrics) RecordMessageSent(messageType string) {
	m.messagesSent.WithLabelValues(messageType).Inc()
}

// RecordDecodeError increments the dropped-message counter
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Inc()
}

// RecordBroadcastFanout records how many clients received a broadcast
func (m *Metrics) RecordBroadcastFanout(recipientCount int) {
	m.broadcastFanout.Observe(float64(recipientCount))
}

// RecordRecipientSkipped increments the skipped-recipient counter
func (m *Metrics) RecordRecipientSkipped() {
	m.recipientsSkipped.Inc()
}

// RecordSendFailure increments the failed-write counter
func (m *Metrics) RecordSendFailure() {
	m.sendFailures.Inc()
}
