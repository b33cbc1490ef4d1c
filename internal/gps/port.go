package gps

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the serial line the Engine talks to. A go.bug.st/serial port
// satisfies it; tests use an in-memory fake.
//
// Read must return (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Open opens the modem's AT command port with 8N1 framing.
//
// Parameters:
//   - path: Device path (e.g. /dev/ttyUSB2)
//   - baudRate: Line speed
//
// Returns:
//   - Port: Open port, owned by the caller
//   - error: If the device cannot be opened
func Open(path string, baudRate int) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrTransport, path, err)
	}
	return port, nil
}
