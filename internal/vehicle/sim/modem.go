package sim

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ModemOptions configures the simulated GPS modem.
type ModemOptions struct {
	// LockAfter is the number of AT+CGPSINFO queries answered with empty
	// fields before the receiver reports a fix.
	LockAfter int
	// Latitude and Longitude are where the simulated route starts.
	Latitude  float64
	Longitude float64
	// Echo repeats each command before the reply, like a module with ATE1.
	Echo bool
	// Now replaces the wall clock used for the fix date and time.
	Now func() time.Time
	// Wait is called when a read finds no data. Defaults to time.Sleep.
	Wait func(time.Duration)
}

// Modem emulates the AT command port of a cellular module with GPS.
// It satisfies gps.Port.
type Modem struct {
	opts ModemOptions

	mu          sync.Mutex
	out         bytes.Buffer
	line        []byte
	readTimeout time.Duration
	enabled     bool
	queries     int
	closed      bool
}

// NewModem creates a modem whose receiver starts switched off.
func NewModem(opts ModemOptions) *Modem {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Wait == nil {
		opts.Wait = time.Sleep
	}
	if opts.Latitude == 0 && opts.Longitude == 0 {
		opts.Latitude, opts.Longitude = 43.328933, -8.408309
	}
	return &Modem{opts: opts}
}

// SetEnabled forces the receiver state, e.g. to emulate a module left
// running by a previous process.
func (m *Modem) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Enabled reports whether the receiver is on.
func (m *Modem) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Write accepts command bytes and queues the reply once a CRLF arrives.
func (m *Modem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}

	m.line = append(m.line, p...)
	for {
		i := bytes.Index(m.line, []byte("\r\n"))
		if i < 0 {
			break
		}
		cmd := string(m.line[:i])
		m.line = m.line[i+2:]
		if m.opts.Echo {
			m.out.WriteString(cmd + "\r\r\n")
		}
		m.out.WriteString(m.answer(cmd))
	}
	return len(p), nil
}

// Read returns queued reply bytes, or (0, nil) after the read timeout.
func (m *Modem) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errPortClosed
	}
	if m.out.Len() > 0 {
		n, _ := m.out.Read(p) //nolint:errcheck // bytes.Buffer only fails when empty
		m.mu.Unlock()
		return n, nil
	}
	timeout := m.readTimeout
	m.mu.Unlock()

	m.opts.Wait(timeout)
	return 0, nil
}

// SetReadTimeout sets how long an empty Read waits.
func (m *Modem) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = t
	return nil
}

// ResetInputBuffer discards unread reply bytes.
func (m *Modem) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out.Reset()
	return nil
}

// Close marks the port closed.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var errPortClosed = errors.New("sim: modem port closed")

const (
	replyOK    = "\r\nOK\r\n"
	replyError = "\r\nERROR\r\n"
	emptyInfo  = "+CGPSINFO: ,,,,,,,,\r\n" + replyOK
)

func (m *Modem) answer(cmd string) string {
	switch strings.ToUpper(strings.TrimSpace(cmd)) {
	case "AT":
		return replyOK
	case "AT+CGPS?":
		if m.enabled {
			return "+CGPS: 1,1\r\n" + replyOK
		}
		return "+CGPS: 0,1\r\n" + replyOK
	case "AT+CGPS=0":
		m.enabled = false
		return replyOK
	case "AT+CGPS=1":
		if m.enabled {
			return replyError
		}
		m.enabled = true
		m.queries = 0
		return replyOK
	case "AT+CGPSINFO":
		if !m.enabled {
			return emptyInfo
		}
		m.queries++
		if m.queries <= m.opts.LockAfter {
			return emptyInfo
		}
		return m.info() + replyOK
	default:
		return replyError
	}
}

// info renders the current position as a +CGPSINFO line. The route heads
// north-east a few metres per query.
func (m *Modem) info() string {
	step := float64(m.queries-m.opts.LockAfter) * 0.00005
	lat := m.opts.Latitude + step
	lon := m.opts.Longitude + step
	now := m.opts.Now().UTC()

	latText, latHemi := degreesMinutes(lat, 2, "N", "S")
	lonText, lonHemi := degreesMinutes(lon, 3, "E", "W")
	speedKnots := 9.7 + 0.5*math.Sin(float64(m.queries)/5)

	return fmt.Sprintf("+CGPSINFO: %s,%s,%s,%s,%s,%s,%.1f,%.1f,\r\n",
		latText, latHemi, lonText, lonHemi,
		now.Format("020106"), now.Format("150405")+".0",
		176.0+math.Sin(float64(m.queries)), speedKnots)
}

func degreesMinutes(v float64, degreeDigits int, positive, negative string) (string, string) {
	hemisphere := positive
	if v < 0 {
		hemisphere = negative
		v = -v
	}
	degrees := math.Floor(v)
	minutes := (v - degrees) * 60
	return fmt.Sprintf("%0*d%09.6f", degreeDigits, int(degrees), minutes), hemisphere
}
