package gps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/retry"
)

const (
	// commandTimeout bounds every AT command.
	commandTimeout = time.Second

	// toggleDelay separates AT+CGPS=0 from AT+CGPS=1 when restarting the receiver.
	toggleDelay = 500 * time.Millisecond
)

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

// Engine owns the modem's serial port and serialises every command on it.
//
// Thread Safety:
//   - All methods are safe for concurrent use; commands never overlap.
type Engine struct {
	port Port
	mu   sync.Mutex

	now    func() time.Time
	sleep  retry.SleepFunc
	logger Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for command deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSleep replaces the pause used between disabling and enabling the receiver.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// NewEngine takes ownership of port and configures its read timeout.
//
// Returns:
//   - *Engine: Engine ready for EnableGPS
//   - error: If the port rejects the read timeout
func NewEngine(port Port, opts ...Option) (*Engine, error) {
	if err := port.SetReadTimeout(settleDelay); err != nil {
		return nil, fmt.Errorf("%w: setting read timeout: %w", ErrTransport, err)
	}

	e := &Engine{
		port:   port,
		now:    time.Now,
		sleep:  retry.Sleep,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetLogger sets the logger for engine events.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// EnableGPS starts the receiver. A receiver that reports itself already
// running is switched off first, which clears a module left wedged by an
// earlier run.
//
// Returns:
//   - error: Transport failure, or ErrNotAcknowledged if AT+CGPS=1 got no OK
func (e *Engine) EnableGPS(ctx context.Context) error {
	status, err := e.SendCommand(ctx, cmdStatus, markerStatus, commandTimeout)
	if err != nil {
		return fmt.Errorf("querying gps status: %w", err)
	}

	if status.Matched() && strings.Contains(status.Text, statusEnabled) {
		e.logger.Info("gps receiver already running, restarting it")

		off, err := e.SendCommand(ctx, cmdDisable, markerOK, commandTimeout)
		if err != nil {
			return fmt.Errorf("disabling gps: %w", err)
		}
		if !off.Matched() {
			e.logger.Warn("gps disable not acknowledged", "reply", off.Text)
		}
		if err := e.sleep(ctx, toggleDelay); err != nil {
			return err
		}
	}

	on, err := e.SendCommand(ctx, cmdEnable, markerOK, commandTimeout)
	if err != nil {
		return fmt.Errorf("enabling gps: %w", err)
	}
	if !on.Matched() {
		return fmt.Errorf("%w: reply %q", ErrNotAcknowledged, on.Text)
	}

	e.logger.Info("gps receiver enabled")
	return nil
}

// GetFix samples the receiver once.
//
// Returns:
//   - Fix: A Valid fix, or NullIsland while searching or when the reply is rejected
//   - error: Wrapped ErrTransport, or ErrUnavailable when the reply lacks the marker
func (e *Engine) GetFix(ctx context.Context) (Fix, error) {
	reply, err := e.SendCommand(ctx, cmdInfo, infoMarker, commandTimeout)
	if err != nil {
		return Fix{}, err
	}
	if !reply.Matched() {
		return Fix{}, fmt.Errorf("%w: no %q in reply %q", ErrUnavailable, infoMarker, reply.Text)
	}

	if isSearching(reply.Text) {
		e.logger.Debug("gps searching for satellites")
		return NullIsland(), nil
	}

	fix, reason := parse(reply.Text)
	if reason != nil {
		e.logger.Debug("gps reply rejected", "reason", reason, "reply", reply.Text)
	}
	return fix, nil
}

// Close releases the serial port.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port.Close()
}
