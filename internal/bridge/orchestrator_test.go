package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/session"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

const (
	testSendInterval = 5 * time.Second
	testSettleDelay  = 7 * time.Second
)

var (
	errGATT       = errors.New("gatt: notification timeout")
	errOutOfRange = errors.New("le-connection-abort-by-local")
)

// harness wires fakes around an Orchestrator and records what happened in order.
type harness struct {
	t      *testing.T
	trace  []string
	cancel context.CancelFunc

	// stopAfter cancels the run after this many send-interval sleeps.
	stopAfter int
	sleeps    int

	peripheral *fakePeripheral
	scanner    *fakeScanner
	lifecycle  *fakeLifecycle
	puller     *fakePuller
	publisher  *fakePublisher
	metrics    *Metrics
}

func (h *harness) record(event string) {
	h.trace = append(h.trace, event)
}

func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	switch d {
	case testSendInterval:
		h.record("sleep")
		h.sleeps++
		if h.sleeps >= h.stopAfter {
			h.cancel()
		}
	case testSettleDelay:
		h.record("settle")
	default:
		h.t.Errorf("unexpected sleep %v", d)
	}
	return ctx.Err()
}

type fakePeripheral struct {
	h             *harness
	connected     bool
	connectCalls  int
	failConnect   bool
	disconnectErr error
}

func (p *fakePeripheral) IsConnected(context.Context) (bool, error) { return p.connected, nil }

func (p *fakePeripheral) Connect(context.Context) error {
	p.connectCalls++
	if p.failConnect {
		p.h.record("connect-failed")
		return errOutOfRange
	}
	p.h.record("connect")
	p.connected = true
	return nil
}

func (p *fakePeripheral) Disconnect(context.Context) error {
	if p.disconnectErr != nil {
		p.h.record("disconnect-failed")
		return p.disconnectErr
	}
	p.h.record("disconnect")
	p.connected = false
	return nil
}

type fakeScanner struct {
	peripheral *fakePeripheral
	err        error
}

func (s *fakeScanner) WaitFor(_ context.Context, mac vehicle.MAC) (vehicle.Device, error) {
	if s.err != nil {
		return vehicle.Device{}, s.err
	}
	return vehicle.Device{MAC: mac, Name: "MIScooter1234"}, nil
}

func (s *fakeScanner) Peripheral(context.Context, vehicle.Device) (vehicle.Peripheral, error) {
	return s.peripheral, nil
}

type fakeSession struct {
	id int
}

func (fakeSession) MotorInfo(context.Context) (vehicle.MotorInfo, error)     { return vehicle.MotorInfo{}, nil }
func (fakeSession) BatteryInfo(context.Context) (vehicle.BatteryInfo, error) { return vehicle.BatteryInfo{}, nil }
func (fakeSession) DistanceLeftKm(context.Context) (float32, error)          { return 0, nil }

// fakeLifecycle checks the link the way session.Lifecycle does, then logs in.
type fakeLifecycle struct {
	h     *harness
	calls int
}

func (l *fakeLifecycle) Establish(ctx context.Context, links session.Linker) (vehicle.Session, error) {
	if _, err := links.Connect(ctx); err != nil {
		return nil, err
	}
	l.calls++
	l.h.record("establish")
	return fakeSession{id: l.calls}, nil
}

// fakePuller fails the pulls listed in failOn (1-based) and runs hook before each pull.
type fakePuller struct {
	h        *harness
	calls    int
	failOn   map[int]bool
	hook     func(call int)
	sessions []vehicle.Session
}

func (p *fakePuller) Pull(_ context.Context, s vehicle.Session) (telemetry.Snapshot, error) {
	p.calls++
	p.sessions = append(p.sessions, s)
	if p.hook != nil {
		p.hook(p.calls)
	}
	if p.failOn[p.calls] {
		p.h.record("pull-failed")
		return telemetry.Snapshot{}, errGATT
	}
	p.h.record("pull")
	return telemetry.Snapshot{
		Timestamp: "2024-07-15T16:20:16+02:00",
		SpeedKmh:  18.5,
		GPS:       gps.NullIsland(),
	}, nil
}

type fakePublisher struct {
	h        *harness
	fail     bool
	topics   []string
	payloads [][]byte
}

func (p *fakePublisher) PublishBestEffort(topic string, payload []byte) bool {
	p.h.record("publish")
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return !p.fail
}

func newHarness(t *testing.T, stopAfter int) *harness {
	t.Helper()
	h := &harness{t: t, stopAfter: stopAfter}
	h.peripheral = &fakePeripheral{h: h}
	h.scanner = &fakeScanner{peripheral: h.peripheral}
	h.lifecycle = &fakeLifecycle{h: h}
	h.puller = &fakePuller{h: h, failOn: map[int]bool{}}
	h.publisher = &fakePublisher{h: h}
	h.metrics = NewMetrics(prometheus.NewRegistry())
	return h
}

func (h *harness) run() (*Orchestrator, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.cancel = cancel

	o := New(Config{
		MAC:          vehicle.MAC{0xD5, 0xE3, 0xA1, 0xB2, 0xC3, 0xF4},
		Topic:        "scooter/telemetry",
		SendInterval: testSendInterval,
		InitialLink:  retry.Policy{MaxAttempts: 10, Interval: time.Second},
		Relink:       retry.Policy{MaxAttempts: 5, Interval: time.Second},
		SettleDelay:  testSettleDelay,
	}, Deps{
		Scanner:   h.scanner,
		Lifecycle: h.lifecycle,
		Assembler: h.puller,
		Publisher: h.publisher,
		Metrics:   h.metrics,
		Sleep:     h.sleep,
		Timer:     retry.InstantTimer(),
	})
	return o, o.Run(ctx)
}

func (h *harness) assertTrace(want ...string) {
	h.t.Helper()
	if got := strings.Join(h.trace, " "); got != strings.Join(want, " ") {
		h.t.Errorf("trace:\n got  %s\n want %s", got, strings.Join(want, " "))
	}
}

// ============================================================================
// Streaming
// ============================================================================

func TestRun_PublishFailureDoesNotHaltLoop(t *testing.T) {
	h := newHarness(t, 3)
	h.publisher.fail = true

	o, err := h.run()
	if err != nil {
		t.Fatalf("Run() error = %v, want nil after cancellation", err)
	}

	h.assertTrace(
		"connect", "establish",
		"pull", "publish", "sleep",
		"pull", "publish", "sleep",
		"pull", "publish", "sleep",
	)
	if got := testutil.ToFloat64(h.metrics.Publishes.WithLabelValues("dropped")); got != 3 {
		t.Errorf("publish_total{dropped} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(h.metrics.NullIsland); got != 3 {
		t.Errorf("gps_null_island_total = %v, want 3", got)
	}

	status := o.Status()
	if status.PublishDropped != 3 || status.Published != 0 || status.Pulls != 3 {
		t.Errorf("Status() = %+v", status)
	}
	if status.Device != "MIScooter1234" {
		t.Errorf("Status().Device = %q", status.Device)
	}
}

func TestRun_PublishesExactSnapshotPayload(t *testing.T) {
	h := newHarness(t, 1)

	if _, err := h.run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.publisher.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(h.publisher.payloads))
	}
	if h.publisher.topics[0] != "scooter/telemetry" {
		t.Errorf("topic = %q", h.publisher.topics[0])
	}
	decoded, err := telemetry.Decode(h.publisher.payloads[0])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.SpeedKmh != 18.5 || !decoded.GPS.IsNullIsland() {
		t.Errorf("decoded = %+v", decoded)
	}
}

// ============================================================================
// Recovery
// ============================================================================

func TestRun_PullFailureRecoversWithoutPublishing(t *testing.T) {
	h := newHarness(t, 3)
	h.puller.failOn[2] = true

	o, err := h.run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h.assertTrace(
		"connect", "establish",
		"pull", "publish", "sleep",
		"pull-failed",
		"disconnect", "settle", "connect", "establish",
		"pull", "publish", "sleep",
		"pull", "publish", "sleep",
	)
	if got := testutil.ToFloat64(h.metrics.Recoveries); got != 1 {
		t.Errorf("recoveries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.Pulls.WithLabelValues("failed")); got != 1 {
		t.Errorf("pulls_total{failed} = %v, want 1", got)
	}
	if h.puller.sessions[2] == h.puller.sessions[0] {
		t.Error("session reused after a fresh link, want a new login")
	}
	if o.Status().Recoveries != 1 {
		t.Errorf("Status().Recoveries = %d, want 1", o.Status().Recoveries)
	}
}

func TestRun_SurvivingLinkKeepsSession(t *testing.T) {
	h := newHarness(t, 2)
	h.puller.failOn[1] = true
	h.peripheral.disconnectErr = errors.New("org.bluez.Error.Failed")

	if _, err := h.run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h.assertTrace(
		"connect", "establish",
		"pull-failed",
		"disconnect-failed", "settle",
		"pull", "publish", "sleep",
		"pull", "publish", "sleep",
	)
	if h.lifecycle.calls != 1 {
		t.Errorf("logins = %d, want 1", h.lifecycle.calls)
	}
	if h.puller.sessions[1] != h.puller.sessions[0] {
		t.Error("session replaced, want reuse when the link survived")
	}
}

func TestRun_RelinkExhaustedIsFatal(t *testing.T) {
	h := newHarness(t, 100)
	h.puller.failOn[2] = true
	h.puller.hook = func(call int) {
		if call == 2 {
			h.peripheral.failConnect = true
		}
	}

	o, err := h.run()
	if !errors.Is(err, ErrRelinkExhausted) {
		t.Fatalf("Run() error = %v, want ErrRelinkExhausted", err)
	}
	if !errors.Is(err, errOutOfRange) {
		t.Errorf("Run() error = %v, want the last link error", err)
	}
	if o.State() != StateFatal {
		t.Errorf("State() = %q, want fatal", o.State())
	}
	if h.peripheral.connectCalls != 1+5 {
		t.Errorf("connect calls = %d, want 1 initial + 5 relink", h.peripheral.connectCalls)
	}
	if got := testutil.ToFloat64(h.metrics.State.WithLabelValues(StateFatal)); got != 1 {
		t.Errorf("state{fatal} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.State.WithLabelValues(StateStreaming)); got != 0 {
		t.Errorf("state{streaming} = %v, want 0", got)
	}
}

// ============================================================================
// Startup
// ============================================================================

func TestRun_UnresolvedDeviceIsFatal(t *testing.T) {
	h := newHarness(t, 100)
	h.scanner.err = errors.New("adapter not found")

	_, err := h.run()
	if !errors.Is(err, ErrDeviceUnresolved) {
		t.Errorf("Run() error = %v, want ErrDeviceUnresolved", err)
	}
	if len(h.trace) != 0 {
		t.Errorf("trace = %v, want nothing after failed discovery", h.trace)
	}
}

func TestRun_InitialLinkExhaustedIsFatal(t *testing.T) {
	h := newHarness(t, 100)
	h.peripheral.failConnect = true

	_, err := h.run()
	if !errors.Is(err, ErrLinkExhausted) {
		t.Errorf("Run() error = %v, want ErrLinkExhausted", err)
	}
	if h.peripheral.connectCalls != 10 {
		t.Errorf("connect calls = %d, want 10", h.peripheral.connectCalls)
	}
}

func TestNew_StartsLinking(t *testing.T) {
	o := New(Config{}, Deps{})
	if o.State() != StateLinking {
		t.Errorf("State() = %q, want linking", o.State())
	}
	if o.Status().State != StateLinking {
		t.Errorf("Status().State = %q, want linking", o.Status().State)
	}
}
