package ingest

import "errors"

var (
	// ErrNoStore is returned by New without a history store.
	ErrNoStore = errors.New("ingest: store is required")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("ingest: not started")

	// ErrNotSubscribed is reported by HealthCheck when the subscriber has
	// dropped the telemetry topic.
	ErrNotSubscribed = errors.New("ingest: topic not subscribed")
)
