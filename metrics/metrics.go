package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "commlink"

// Transport status values reported by the transport_status gauge.
const (
	StatusDisconnected = 0
	StatusConnected    = 1
	StatusError        = 2
)

// Metrics holds every collector of the client.
type Metrics struct {
	transportStatus     prometheus.Gauge
	transportReconnects prometheus.Counter
	eventsReceived      *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	callState           *prometheus.GaugeVec
	callPeers           prometheus.Gauge
	pollRefreshes       *prometheus.CounterVec
	typingSent          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transportStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_status",
			Help:      "Realtime connection status (0 disconnected, 1 connected, 2 error).",
		}),
		transportReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Reconnect attempts scheduled after a lost or failed connection.",
		}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound realtime events by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Inbound or outbound events dropped, by reason.",
		}, []string{"reason"}),
		callState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_state",
			Help:      "1 for the current call state, 0 otherwise.",
		}, []string{"state"}),
		callPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_peers",
			Help:      "Peer connections held by the active call.",
		}),
		pollRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_refreshes_total",
			Help:      "Fallback refreshes by outcome.",
		}, []string{"result"}),
		typingSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_sent_total",
			Help:      "Outbound typing notifications by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transportStatus,
		m.transportReconnects,
		m.eventsReceived,
		m.eventsDropped,
		m.callState,
		m.callPeers,
		m.pollRefreshes,
		m.typingSent,
	}
}

// TransportStatus records the current connection status.
func (m *Metrics) TransportStatus(v int) {
	if m == nil {
		return
	}
	m.transportStatus.Set(float64(v))
}

// Reconnect counts a scheduled reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.transportReconnects.Inc()
}

// EventReceived counts an inbound event.
func (m *Metrics) EventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// EventDropped counts a dropped event.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// CallState marks state as the current call state. all lists every state
// so the previous one is reset.
func (m *Metrics) CallState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.callState.WithLabelValues(s).Set(0)
	}
	m.callState.WithLabelValues(state).Set(1)
}

// CallPeers records the size of the peer set.
func (m *Metrics) CallPeers(n int) {
	if m == nil {
		return
	}
	m.callPeers.Set(float64(n))
}

// PollRefresh counts a fallback refresh with result "ok", "error" or "skipped".
func (m *Metrics) PollRefresh(result string) {
	if m == nil {
		return
	}
	m.pollRefreshes.WithLabelValues(result).Inc()
}

// TypingSent counts an outbound typing notification.
func (m *Metrics) TypingSent(kind string) {
	if m == nil {
		return
	}
	m.typingSent.WithLabelValues(kind).Inc()
}
