package gps

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AT command protocol constants.
const (
	CRLF = "\r\n"

	cmdStatus  = "AT+CGPS?"
	cmdDisable = "AT+CGPS=0"
	cmdEnable  = "AT+CGPS=1"
	cmdInfo    = "AT+CGPSINFO"

	markerStatus = "+CGPS: "
	markerOK     = "OK"

	// statusEnabled is the +CGPS? answer of a receiver already running.
	statusEnabled = "+CGPS: 1,1"

	// maxReplyBytes caps how much of one reply is read.
	maxReplyBytes = 1024

	// settleDelay is the serial read timeout: once the line has been quiet
	// this long after data, the reply is considered complete.
	settleDelay = 10 * time.Millisecond
)

// ReplyKind tags a command reply.
type ReplyKind int

const (
	// NoMatch means the expected marker never arrived within the timeout.
	NoMatch ReplyKind = iota
	// Matched means the reply contains the expected marker.
	Matched
)

// Reply is the outcome of SendCommand. Text holds everything read, also for
// NoMatch replies, for logging.
type Reply struct {
	Kind ReplyKind
	Text string
}

// Matched reports whether the expected marker was seen.
func (r Reply) Matched() bool {
	return r.Kind == Matched
}

// SendCommand writes command followed by CRLF and collects the reply until
// it contains marker and the line goes quiet, or timeout elapses.
//
// A reply without the marker is not an error; it is returned as NoMatch.
// Only serial I/O failures and context cancellation return an error.
//
// Parameters:
//   - ctx: Cancels the wait between reads
//   - command: AT command without line terminator
//   - marker: Substring that identifies the expected reply
//   - timeout: Upper bound on the wait for the marker
//
// Returns:
//   - Reply: Matched with the full reply text, or NoMatch
//   - error: Wrapped ErrTransport, or the context error
func (e *Engine) SendCommand(ctx context.Context, command, marker string, timeout time.Duration) (Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stale bytes from an earlier, timed-out command would confuse matching.
	if err := e.port.ResetInputBuffer(); err != nil {
		return Reply{}, fmt.Errorf("%w: resetting input: %w", ErrTransport, err)
	}
	if _, err := e.port.Write([]byte(command + CRLF)); err != nil {
		return Reply{}, fmt.Errorf("%w: writing %s: %w", ErrTransport, command, err)
	}

	deadline := e.now().Add(timeout)
	buf := make([]byte, 0, maxReplyBytes)
	chunk := make([]byte, maxReplyBytes)
	seen := false

	for {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}

		n := 0
		if len(buf) < maxReplyBytes {
			var err error
			n, err = e.port.Read(chunk[:maxReplyBytes-len(buf)])
			if err != nil {
				return Reply{}, fmt.Errorf("%w: reading reply to %s: %w", ErrTransport, command, err)
			}
			buf = append(buf, chunk[:n]...)
			seen = seen || strings.Contains(string(buf), marker)
		}

		quiet := n == 0
		full := len(buf) >= maxReplyBytes
		expired := !e.now().Before(deadline)

		switch {
		case seen && (quiet || full || expired):
			return Reply{Kind: Matched, Text: string(buf)}, nil
		case expired || full:
			return Reply{Kind: NoMatch, Text: string(buf)}, nil
		}
	}
}
