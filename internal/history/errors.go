package history

import "errors"

// Domain errors for the history repository.
var (
	// ErrExists is returned when a snapshot with the same timestamp is already stored.
	ErrExists = errors.New("history: entry already exists")

	// ErrInvalidFilter is returned for a filter that cannot be satisfied.
	ErrInvalidFilter = errors.New("history: invalid filter")
)
