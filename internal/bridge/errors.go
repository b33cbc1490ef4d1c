package bridge

import "errors"

// Fatal conditions. Run returns one of these, wrapped with the cause.
var (
	// ErrDeviceUnresolved means the scanner could not find the scooter at startup.
	ErrDeviceUnresolved = errors.New("bridge: device unresolved")

	// ErrLinkExhausted means the initial link profile ran out of attempts.
	ErrLinkExhausted = errors.New("bridge: initial link exhausted")

	// ErrRelinkExhausted means recovery could not bring the link back.
	ErrRelinkExhausted = errors.New("bridge: relink exhausted")
)
