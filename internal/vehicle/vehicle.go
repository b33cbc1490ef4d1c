package vehicle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
)

// TokenSize is the length of the login secret in bytes.
const TokenSize = 12

// MAC is a Bluetooth device address.
type MAC [6]byte

// ParseMAC parses 12 hex digits without delimiters.
func ParseMAC(s string) (MAC, error) {
	raw, err := config.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	return MAC(raw), nil
}

// String returns the colon-separated upper-case form.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// AuthToken is the secret exchanged during login. It is loaded once and
// never modified.
type AuthToken [TokenSize]byte

// LoadToken reads the token blob at path. Only the first TokenSize bytes are
// used; a shorter file leaves the remainder zeroed and is left for the login
// handshake to reject.
func LoadToken(path string) (AuthToken, error) {
	var token AuthToken

	f, err := os.Open(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		return token, fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	if _, err := io.ReadFull(f, token[:]); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return token, fmt.Errorf("reading token file: %w", err)
	}
	return token, nil
}

// Device identifies a discovered scooter.
type Device struct {
	MAC  MAC
	Name string
}

// Scanner discovers the scooter and hands out its peripheral.
type Scanner interface {
	// WaitFor blocks until a device with the given address is advertising.
	WaitFor(ctx context.Context, mac MAC) (Device, error)
	// Peripheral returns a connectable handle for a discovered device.
	Peripheral(ctx context.Context, device Device) (Peripheral, error)
}

// Peripheral is the wireless link to the scooter.
type Peripheral interface {
	IsConnected(ctx context.Context) (bool, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// LoginRequester builds login requests for a connected peripheral.
type LoginRequester interface {
	NewRequest(ctx context.Context, p Peripheral, token AuthToken) (LoginRequest, error)
}

// LoginRequest runs the handshake.
type LoginRequest interface {
	Start(ctx context.Context) (Session, error)
}

// Session is an authenticated telemetry channel. A Session is not safe for
// concurrent use.
type Session interface {
	MotorInfo(ctx context.Context) (MotorInfo, error)
	BatteryInfo(ctx context.Context) (BatteryInfo, error)
	DistanceLeftKm(ctx context.Context) (float32, error)
}

// MotorInfo is the drive-train status block.
type MotorInfo struct {
	SpeedKmh         float32
	TotalDistanceM   uint32
	TripDistanceM    int16
	Uptime           time.Duration
	FrameTemperature float32
}

// BatteryInfo is the battery management status block.
type BatteryInfo struct {
	Capacity     uint16  `json:"capacity"`
	Percent      uint16  `json:"percent"`
	Voltage      float32 `json:"voltage"`
	Current      float32 `json:"current"`
	Temperature1 uint8   `json:"temperature_1"`
	Temperature2 uint8   `json:"temperature_2"`
}

// Power returns the instantaneous power draw in watts.
func (b BatteryInfo) Power() float32 {
	return b.Voltage * b.Current
}
