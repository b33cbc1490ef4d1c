package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/link"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

var (
	errRadio = errors.New("gatt write failed")
	errLink  = errors.New("link: adapter powered off")
)

type fakeLinker struct {
	errs  []error
	calls int
}

func (f *fakeLinker) Connect(_ context.Context) (link.Result, error) {
	f.calls++
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return link.Failed, f.errs[f.calls-1]
	}
	return link.AlreadyConnected, nil
}

func (f *fakeLinker) Peripheral() vehicle.Peripheral { return nil }

type fakeSession struct{}

func (fakeSession) MotorInfo(context.Context) (vehicle.MotorInfo, error)     { return vehicle.MotorInfo{}, nil }
func (fakeSession) BatteryInfo(context.Context) (vehicle.BatteryInfo, error) { return vehicle.BatteryInfo{}, nil }
func (fakeSession) DistanceLeftKm(context.Context) (float32, error)          { return 0, nil }

// fakeLogin fails the request step requestFailures times, then the start
// step startFailures times.
type fakeLogin struct {
	requestFailures int
	startFailures   int
	requests        int
	starts          int
	gotToken        vehicle.AuthToken
}

func (f *fakeLogin) NewRequest(_ context.Context, _ vehicle.Peripheral, token vehicle.AuthToken) (vehicle.LoginRequest, error) {
	f.requests++
	f.gotToken = token
	if f.requests <= f.requestFailures {
		return nil, errRadio
	}
	return f, nil
}

func (f *fakeLogin) Start(_ context.Context) (vehicle.Session, error) {
	f.starts++
	if f.starts <= f.startFailures {
		return nil, errRadio
	}
	return fakeSession{}, nil
}

func TestEstablish_RetriesHandshakeFailures(t *testing.T) {
	login := &fakeLogin{requestFailures: 3, startFailures: 4}
	token := vehicle.AuthToken{0xAA, 0xBB}
	links := &fakeLinker{}
	l := New(login, token, WithTimer(retry.InstantTimer()))

	s, err := l.Establish(context.Background(), links)
	if err != nil {
		t.Fatalf("Establish() error = %v", err)
	}
	if s == nil {
		t.Fatal("Establish() returned nil session")
	}
	if login.requests != 8 || login.starts != 5 {
		t.Errorf("requests = %d, starts = %d, want 8 and 5", login.requests, login.starts)
	}
	if links.calls != 8 {
		t.Errorf("link checks = %d, want one per attempt", links.calls)
	}
	if login.gotToken != token {
		t.Errorf("token = %X, want %X", login.gotToken, token)
	}
}

func TestEstablish_LinkFailurePropagates(t *testing.T) {
	login := &fakeLogin{startFailures: 2}
	links := &fakeLinker{errs: []error{nil, nil, errLink}}
	l := New(login, vehicle.AuthToken{1}, WithTimer(retry.InstantTimer()))

	_, err := l.Establish(context.Background(), links)
	if !errors.Is(err, errLink) {
		t.Fatalf("Establish() error = %v, want link error", err)
	}
	if login.starts != 2 {
		t.Errorf("starts = %d, want 2 before the link failed", login.starts)
	}
}

func TestEstablish_Cancelled(t *testing.T) {
	login := &fakeLogin{startFailures: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New(login, vehicle.AuthToken{1}, WithTimer(retry.InstantTimer()))

	_, err := l.Establish(ctx, &fakeLinker{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Establish() error = %v, want context.Canceled", err)
	}
}

func TestWithRetryInterval(t *testing.T) {
	l := New(&fakeLogin{}, vehicle.AuthToken{}, WithRetryInterval(500*time.Millisecond))
	if l.policy.Interval != 500*time.Millisecond {
		t.Errorf("Interval = %v, want 500ms", l.policy.Interval)
	}
	if !l.policy.Unbounded() {
		t.Error("policy is bounded, want unbounded")
	}
}
