package link

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// Result is the outcome of Connect.
type Result int

const (
	// Failed means the link is down; the accompanying error says why.
	Failed Result = iota
	// Connected means this call brought the link up.
	Connected
	// AlreadyConnected means the link was up before the call; no connect
	// was issued.
	AlreadyConnected
)

// String returns the result name used in logs.
func (r Result) String() string {
	switch r {
	case Connected:
		return "connected"
	case AlreadyConnected:
		return "already_connected"
	default:
		return "failed"
	}
}

// DefaultSettleDelay separates a disconnect from the following connect.
// Bluetooth stacks report "busy" when asked to connect right after a teardown.
const DefaultSettleDelay = 5 * time.Second

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the Manager's pacing.
type Config struct {
	// Policy bounds Connect. Each attempt is one transport connect call.
	Policy retry.Policy
	// SettleDelay is the pause inside Reconnect. Zero uses DefaultSettleDelay.
	SettleDelay time.Duration
	// Sleep performs the settle pause. Nil uses retry.Sleep.
	Sleep retry.SleepFunc
	// Timer paces connect attempts. Nil uses real time.
	Timer retry.Timer
	// Logger receives link events. Nil disables logging.
	Logger Logger
}

// Manager owns the connection handle for one relink generation.
//
// Thread Safety:
//   - Not safe for concurrent use. The bridge drives it from a single goroutine.
type Manager struct {
	peripheral vehicle.Peripheral
	cfg        Config
	logger     Logger
}

// NewManager creates a Manager for peripheral.
func NewManager(peripheral vehicle.Peripheral, cfg Config) *Manager {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{peripheral: peripheral, cfg: cfg, logger: logger}
}

// Peripheral returns the managed peripheral.
func (m *Manager) Peripheral() vehicle.Peripheral {
	return m.peripheral
}

// Connect brings the link up.
//
// If the peripheral already reports a live link, Connect returns
// AlreadyConnected without a transport call. Otherwise it issues up to
// Policy.MaxAttempts connect calls paced by Policy.Interval.
//
// Returns:
//   - Result: Connected, AlreadyConnected, or Failed
//   - error: For Failed, the last transport error wrapped in ErrTransport,
//     or the context error
func (m *Manager) Connect(ctx context.Context) (Result, error) {
	connected, err := m.peripheral.IsConnected(ctx)
	if err != nil {
		return Failed, fmt.Errorf("%w: querying link state: %w", ErrTransport, err)
	}
	if connected {
		m.logger.Debug("link already up")
		return AlreadyConnected, nil
	}

	attempt := 0
	op := func() error {
		attempt++
		return m.peripheral.Connect(ctx)
	}
	notify := func(err error, next time.Duration) {
		m.logger.Debug("link connect failed, retrying",
			"attempt", attempt,
			"max_attempts", m.cfg.Policy.MaxAttempts,
			"next", next,
			"error", err,
		)
	}

	opts := []retry.Option{retry.WithNotify(notify)}
	if m.cfg.Timer != nil {
		opts = append(opts, retry.WithTimer(m.cfg.Timer))
	}
	if err := retry.Do(ctx, m.cfg.Policy, op, opts...); err != nil {
		if retry.IsCancelled(err) {
			return Failed, err
		}
		m.logger.Warn("link connect gave up", "attempts", attempt, "error", err)
		return Failed, fmt.Errorf("%w: connect failed after %d attempts: %w", ErrTransport, attempt, err)
	}

	m.logger.Info("link connected", "attempts", attempt)
	return Connected, nil
}

// Disconnect tears the link down. It never fails hard: a link that is
// already down counts as success, and a failed teardown is logged and
// reported as false so the caller can carry on with a reconnect.
func (m *Manager) Disconnect(ctx context.Context) bool {
	connected, err := m.peripheral.IsConnected(ctx)
	if err != nil {
		m.logger.Warn("link state unknown before disconnect", "error", err)
		return false
	}
	if !connected {
		m.logger.Debug("link already down")
		return true
	}

	if err := m.peripheral.Disconnect(ctx); err != nil {
		m.logger.Error("link disconnect failed", "error", err)
		return false
	}

	m.logger.Debug("link disconnected")
	return true
}

// Reconnect runs Disconnect, waits SettleDelay and then Connect.
// Only the Connect outcome is reported.
func (m *Manager) Reconnect(ctx context.Context) (Result, error) {
	m.logger.Info("link reconnecting")
	m.Disconnect(ctx)

	if err := m.cfg.Sleep(ctx, m.cfg.SettleDelay); err != nil {
		return Failed, err
	}
	return m.Connect(ctx)
}
