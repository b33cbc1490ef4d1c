package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Message results.
const (
	ResultStored    = "stored"
	ResultDuplicate = "duplicate"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// Metrics holds the ingest Prometheus collectors.
type Metrics struct {
	// Messages counts received payloads by result.
	Messages *prometheus.CounterVec

	// TimeSeriesErrors counts snapshots the time-series sink refused.
	TimeSeriesErrors prometheus.Counter

	// Broadcasts counts WebSocket deliveries.
	Broadcasts prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scooter_ingest_messages_total",
				Help: "Telemetry payloads received by result.",
			},
			[]string{"result"},
		),
		TimeSeriesErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scooter_ingest_timeseries_errors_total",
				Help: "Snapshots the time-series sink failed to accept.",
			},
		),
		Broadcasts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scooter_ingest_broadcasts_total",
				Help: "Snapshots delivered to WebSocket subscribers.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Messages, m.TimeSeriesErrors, m.Broadcasts)
	}
	return m
}
