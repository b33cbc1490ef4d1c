package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	// State is 1 for the current state and 0 for the others.
	State *prometheus.GaugeVec

	// Pulls counts snapshot pulls by result (ok, failed).
	Pulls *prometheus.CounterVec

	// Publishes counts publish attempts by result (ok, dropped).
	Publishes *prometheus.CounterVec

	// Recoveries counts entries into the recovering state.
	Recoveries prometheus.Counter

	// NullIsland counts snapshots published without a GPS fix.
	NullIsland prometheus.Counter

	// PullDuration observes how long a complete pull takes.
	PullDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scooter_bridge_state",
				Help: "Current orchestrator state (1 = current).",
			},
			[]string{"state"},
		),
		Pulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scooter_bridge_pulls_total",
				Help: "Telemetry pulls by result.",
			},
			[]string{"result"},
		),
		Publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scooter_bridge_publish_total",
				Help: "Snapshot publish attempts by result.",
			},
			[]string{"result"},
		),
		Recoveries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scooter_bridge_recoveries_total",
				Help: "Link recoveries started after a failed pull.",
			},
		),
		NullIsland: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scooter_bridge_gps_null_island_total",
				Help: "Snapshots carrying no GPS fix.",
			},
		),
		PullDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scooter_bridge_pull_duration_seconds",
				Help:    "Duration of a complete telemetry pull.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.State, m.Pulls, m.Publishes, m.Recoveries, m.NullIsland, m.PullDuration)
	}
	return m
}

func (m *Metrics) setState(current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}
