package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff selects how the wait between attempts evolves.
type Backoff int

const (
	// Fixed waits Interval between every attempt.
	Fixed Backoff = iota
	// Exponential doubles the wait from Interval up to MaxInterval.
	Exponential
)

// String returns the policy name used in logs.
func (b Backoff) String() string {
	switch b {
	case Exponential:
		return "exponential"
	default:
		return "fixed"
	}
}

// Policy bounds and paces a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Zero means unbounded.
	MaxAttempts int

	// Interval is the fixed wait, or the first wait for Exponential.
	Interval time.Duration

	// MaxInterval caps Exponential waits. Ignored for Fixed.
	MaxInterval time.Duration

	Backoff Backoff
}

// Unbounded reports whether the policy retries forever.
func (p Policy) Unbounded() bool {
	return p.MaxAttempts <= 0
}

// newBackOff builds the backoff.BackOff implementing the policy.
func (p Policy) newBackOff() backoff.BackOff {
	var b backoff.BackOff
	switch p.Backoff {
	case Exponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Interval
		eb.MaxInterval = p.MaxInterval
		if eb.MaxInterval < eb.InitialInterval {
			eb.MaxInterval = eb.InitialInterval
		}
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	default:
		b = backoff.NewConstantBackOff(p.Interval)
	}

	if !p.Unbounded() {
		// WithMaxRetries counts retries after the first attempt.
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)) // #nosec G115 -- MaxAttempts > 0 checked above
	}
	return b
}

// Timer is the wait source used between attempts.
type Timer = backoff.Timer

// Option customises a single Do call.
type Option func(*options)

type options struct {
	notify func(err error, next time.Duration)
	timer  Timer
}

// WithNotify registers a callback invoked after each failed attempt that
// will be retried, with the wait before the next attempt.
func WithNotify(fn func(err error, next time.Duration)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// WithTimer replaces the real-time timer.
func WithTimer(t Timer) Option {
	return func(o *options) {
		o.timer = t
	}
}

// Do runs op until it succeeds, the policy is exhausted, op returns a
// Permanent error, or ctx is done.
//
// On exhaustion the last error returned by op is returned unchanged, so
// callers can match the underlying transport error with errors.Is.
// A Permanent error is unwrapped before it is returned.
func Do(ctx context.Context, p Policy, op func() error, opts ...Option) error {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := backoff.WithContext(p.newBackOff(), ctx)
	var notify backoff.Notify
	if o.notify != nil {
		notify = backoff.Notify(o.notify)
	}
	return backoff.RetryNotifyWithTimer(op, b, notify, o.timer)
}

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Sleep waits for d or until ctx is done, whichever comes first.
//
// Returns:
//   - error: ctx.Err() if the context ended the wait, nil otherwise
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepFunc is the signature of Sleep, injected by components that pause.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NoSleep is a SleepFunc that only honours cancellation.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// instantTimer fires as soon as it is started.
type instantTimer struct {
	c chan time.Time
}

// InstantTimer returns a Timer that never waits. It is meant for tests and
// for the bench simulator.
func InstantTimer() Timer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(_ time.Duration) {
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

// IsCancelled reports whether err stems from context cancellation or expiry.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
