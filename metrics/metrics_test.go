package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TransportStatus(StatusConnected)
		m.Reconnect()
		m.EventReceived("message.created")
		m.EventDropped("malformed")
		m.CallState("idle", []string{"idle"})
		m.CallPeers(2)
		m.PollRefresh("ok")
		m.TypingSent("started")
	})
}

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TransportStatus(StatusError)
	m.Reconnect()
	m.Reconnect()
	m.EventReceived("typing.started")
	m.EventDropped("malformed")
	m.CallState("calling", []string{"idle", "calling"})
	m.CallState("idle", []string{"idle", "calling"})
	m.CallPeers(3)
	m.TypingSent("stopped")

	assert.Equal(t, float64(StatusError), testutil.ToFloat64(m.transportStatus))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.transportReconnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsReceived.WithLabelValues("typing.started")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsDropped.WithLabelValues("malformed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.callState.WithLabelValues("calling")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.callState.WithLabelValues("idle")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.callPeers))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "commlink_transport_reconnects_total")
	assert.Contains(t, names, "commlink_call_peers")
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	require.NotNil(t, m)
	assert.Len(t, m.Collectors(), 8)
}
