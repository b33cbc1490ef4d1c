package link

import "errors"

// ErrTransport wraps failures reported by the peripheral.
var ErrTransport = errors.New("link: transport failure")
