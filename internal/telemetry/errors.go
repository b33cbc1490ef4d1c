package telemetry

import "errors"

var (
	// ErrPull wraps any failure that aborted a snapshot pull.
	ErrPull = errors.New("telemetry: pull failed")

	// ErrMalformed is returned by Decode for payloads that are not snapshots.
	ErrMalformed = errors.New("telemetry: malformed snapshot")
)
