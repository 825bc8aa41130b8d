// Package metrics exposes the signald Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the server counters so the hub can record events without
// touching the default registry directly (tests use a private registry).
type Metrics struct {
	ActiveRooms     prometheus.Gauge
	ActiveMembers   prometheus.Gauge
	JoinsTotal      prometheus.Counter
	JoinsRejected   prometheus.Counter
	SignalsRelayed  *prometheus.CounterVec
	DisconnectSwept prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signald_active_rooms",
			Help: "Number of rooms with at least one member.",
		}),
		ActiveMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signald_active_members",
			Help: "Number of members currently registered in a room.",
		}),
		JoinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signald_joins_total",
			Help: "Accepted room joins.",
		}),
		JoinsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "signald_joins_rejected_total",
			Help: "Joins rejected because the room was at capacity.",
		}),
		SignalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_relayed_total",
			Help: "Relayed signaling envelopes by type.",
		}, []string{"type"}),
		DisconnectSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "signald_disconnect_sweeps_total",
			Help: "Memberships cleaned up by transport disconnect rather than an explicit leave.",
		}),
	}
}
