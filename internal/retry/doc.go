// Package retry provides the RetryPolicy shared by every reconnecting
// component: the initial vehicle link, the in-loop relink, the login
// handshake and the broker startup loop.
//
// A Policy is a plain value. Each call site builds its own instance and
// hands it to Do, which drives github.com/cenkalti/backoff/v4 underneath:
//
//	p := retry.Policy{MaxAttempts: 5, Interval: time.Second}
//	err := retry.Do(ctx, p, func() error {
//	    return peripheral.Connect(ctx)
//	}, retry.WithNotify(func(err error, next time.Duration) {
//	    log.Debug("retrying connection", "error", err, "next", next)
//	}))
//
// Waits never block the process: they select on the context, and tests swap
// the timer for an instant one with WithTimer(InstantTimer()).
package retry
