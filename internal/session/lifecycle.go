package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/link"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// DefaultRetryInterval is the pause between handshake attempts.
const DefaultRetryInterval = 2 * time.Second

// Linker is the part of link.Manager the handshake needs.
type Linker interface {
	Connect(ctx context.Context) (link.Result, error)
	Peripheral() vehicle.Peripheral
}

// Logger interface for optional logging support.
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

// Lifecycle turns a connected link into an authenticated Session.
type Lifecycle struct {
	login  vehicle.LoginRequester
	token  vehicle.AuthToken
	policy retry.Policy
	timer  retry.Timer
	logger Logger
}

// Option customises a Lifecycle.
type Option func(*Lifecycle)

// WithRetryInterval replaces DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Lifecycle) {
		l.policy.Interval = d
	}
}

// WithTimer replaces the real-time timer between attempts.
func WithTimer(t retry.Timer) Option {
	return func(l *Lifecycle) {
		l.timer = t
	}
}

// WithLogger sets the logger for handshake events.
func WithLogger(logger Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Lifecycle that logs in with token.
func New(login vehicle.LoginRequester, token vehicle.AuthToken, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		login:  login,
		token:  token,
		policy: retry.Policy{Interval: DefaultRetryInterval, Backoff: retry.Fixed},
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Establish logs in over links, retrying without bound.
//
// Each attempt first makes sure the link is up using the Linker's own retry
// profile, then builds a login request and starts it.
//
// Returns:
//   - vehicle.Session: The authenticated session
//   - error: The link error when the link cannot be (re)established, or the
//     context error. Handshake errors are never returned.
func (l *Lifecycle) Establish(ctx context.Context, links Linker) (vehicle.Session, error) {
	var (
		session vehicle.Session
		attempt int
	)

	op := func() error {
		attempt++
		if _, err := links.Connect(ctx); err != nil {
			return retry.Permanent(err)
		}

		req, err := l.login.NewRequest(ctx, links.Peripheral(), l.token)
		if err != nil {
			return fmt.Errorf("building login request: %w", err)
		}
		s, err := req.Start(ctx)
		if err != nil {
			return fmt.Errorf("login handshake: %w", err)
		}
		session = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		l.logger.Warn("login failed, retrying", "attempt", attempt, "next", next, "error", err)
	}

	opts := []retry.Option{retry.WithNotify(notify)}
	if l.timer != nil {
		opts = append(opts, retry.WithTimer(l.timer))
	}
	if err := retry.Do(ctx, l.policy, op, opts...); err != nil {
		return nil, err
	}

	l.logger.Info("logged in", "attempts", attempt)
	return session, nil
}
