package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the realtime core's prometheus collectors. A nil *Metrics
// is valid everywhere and records nothing, so tests can skip registration.
type Metrics struct {
	ConnectionPhase         prometheus.Gauge
	ReconnectAttempts       prometheus.Counter
	EventsReceived          *prometheus.CounterVec
	EventsDropped           prometheus.Counter
	PresenceUpdates         prometheus.Counter
	RoomJoins               prometheus.Counter
	RoomLeaves              prometheus.Counter
	NotificationsEmitted    prometheus.Counter
	NotificationsSuppressed *prometheus.CounterVec
}

// New registers the core's collectors against reg. Pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionPhase: factory.NewGauge(prometheus.GaugeOpts{
			Name: "classwire_connection_phase",
			Help: "Current connection phase (0=disconnected 1=connecting 2=connected 3=errored).",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_reconnect_attempts_total",
			Help: "Automatic reconnection attempts.",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwire_events_received_total",
			Help: "Domain events received on the connection, by event name.",
		}, []string{"event"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_events_dropped_total",
			Help: "Events dropped due to malformed or unexpected payloads.",
		}),
		PresenceUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_presence_updates_total",
			Help: "Presence entries applied from connection events.",
		}),
		RoomJoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_room_joins_total",
			Help: "room:join messages emitted.",
		}),
		RoomLeaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_room_leaves_total",
			Help: "room:leave messages emitted.",
		}),
		NotificationsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "classwire_notifications_emitted_total",
			Help: "Notifications delivered to the platform surface.",
		}),
		NotificationsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwire_notifications_suppressed_total",
			Help: "Notifications suppressed before delivery, by reason.",
		}, []string{"reason"}),
	}
}

// SetPhase records the connection phase gauge. Nil-safe.
func (m *Metrics) SetPhase(phase int) {
	if m == nil {
		return
	}
	m.ConnectionPhase.Set(float64(phase))
}

// IncReconnect counts one automatic reconnection attempt. Nil-safe.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// IncReceived counts one received event. Nil-safe.
func (m *Metrics) IncReceived(event string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(event).Inc()
}

// IncDropped counts one dropped event. Nil-safe.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// IncPresence counts one applied presence entry. Nil-safe.
func (m *Metrics) IncPresence() {
	if m == nil {
		return
	}
	m.PresenceUpdates.Inc()
}

// IncJoin counts one emitted join. Nil-safe.
func (m *Metrics) IncJoin() {
	if m == nil {
		return
	}
	m.RoomJoins.Inc()
}

// IncLeave counts one emitted leave. Nil-safe.
func (m *Metrics) IncLeave() {
	if m == nil {
		return
	}
	m.RoomLeaves.Inc()
}

// IncEmitted counts one delivered notification. Nil-safe.
func (m *Metrics) IncEmitted() {
	if m == nil {
		return
	}
	m.NotificationsEmitted.Inc()
}

// IncSuppressed counts one suppressed notification. Nil-safe.
func (m *Metrics) IncSuppressed(reason string) {
	if m == nil {
		return
	}
	m.NotificationsSuppressed.WithLabelValues(reason).Inc()
}
