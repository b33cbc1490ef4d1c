package gps

import "errors"

// Sentinel errors for GPS operations.
var (
	// ErrTransport wraps serial read/write failures.
	ErrTransport = errors.New("gps: serial transport failure")

	// ErrUnavailable indicates the modem did not answer AT+CGPSINFO with the
	// expected marker within the command timeout.
	ErrUnavailable = errors.New("gps: receiver unavailable")

	// ErrNotAcknowledged indicates the modem did not acknowledge AT+CGPS=1.
	ErrNotAcknowledged = errors.New("gps: enable not acknowledged")
)
