package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcoot/playerhub/internal/model"
)

const namespace = "playerhub"

// Metrics holds the Prometheus collectors for the session layer
type Metrics struct {
	ConnectedPlayers  prometheus.Gauge
	PlayersRegistered prometheus.Counter
	InboundEvents     *prometheus.CounterVec
	OutboundEvents    *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
}

// New registers the collectors with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectedPlayers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_players",
			Help:      "Number of players currently registered",
		}),
		PlayersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_registered_total",
			Help:      "Total number of player identities issued",
		}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound events processed by the broadcaster",
		}, []string{"event"}),
		OutboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_events_total",
			Help:      "Outbound events queued for delivery, per recipient",
		}, []string{"event"}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound events that could not be queued for a recipient",
		}, []string{"event"}),
	}
}

// Nop returns metrics registered against a throwaway registry
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveInbound counts an inbound event
func (m *Metrics) ObserveInbound(t model.EventType) {
	m.InboundEvents.WithLabelValues(string(t)).Inc()
}

// ObserveDelivery counts one delivery attempt of an outbound event
func (m *Metrics) ObserveDelivery(t model.EventType, err error) {
	if err != nil {
		m.DeliveryFailures.WithLabelValues(string(t)).Inc()
		return
	}
	m.OutboundEvents.WithLabelValues(string(t)).Inc()
}

// SetConnected records the live player count
func (m *Metrics) SetConnected(n int) {
	m.ConnectedPlayers.Set(float64(n))
}
