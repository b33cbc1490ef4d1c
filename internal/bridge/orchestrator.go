package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/link"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/session"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// Orchestrator states.
const (
	StateLinking        = "linking"
	StateAuthenticating = "authenticating"
	StateStreaming      = "streaming"
	StateRecovering     = "recovering"
	StateFatal          = "fatal"
)

var states = []string{StateLinking, StateAuthenticating, StateStreaming, StateRecovering, StateFatal}

// Orchestrator events.
const (
	eventLinked        = "linked"
	eventAuthenticated = "authenticated"
	eventPullFailed    = "pull_failed"
	eventGiveUp        = "give_up"
)

// Publisher sends encoded snapshots. mqtt.Client satisfies it.
type Publisher interface {
	PublishBestEffort(topic string, payload []byte) bool
}

// Puller assembles one snapshot. telemetry.Assembler satisfies it.
type Puller interface {
	Pull(ctx context.Context, s vehicle.Session) (telemetry.Snapshot, error)
}

// Establisher logs in over a link. session.Lifecycle satisfies it.
type Establisher interface {
	Establish(ctx context.Context, links session.Linker) (vehicle.Session, error)
}

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

// Config holds the orchestrator's identity and pacing.
type Config struct {
	MAC          vehicle.MAC
	Topic        string
	SendInterval time.Duration

	// InitialLink bounds the first link; Relink bounds every recovery.
	InitialLink retry.Policy
	Relink      retry.Policy
	SettleDelay time.Duration
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Scanner   vehicle.Scanner
	Lifecycle Establisher
	Assembler Puller
	Publisher Publisher

	// Metrics may be nil.
	Metrics *Metrics
	Logger  Logger

	// Sleep paces the streaming loop and link settle delays. Nil uses retry.Sleep.
	Sleep retry.SleepFunc
	// Timer paces link connect attempts. Nil uses real time.
	Timer retry.Timer
	// Now stamps status updates. Nil uses time.Now.
	Now func() time.Time
}

// Status is a point-in-time view of the orchestrator for the status API.
type Status struct {
	State           string              `json:"state"`
	Since           time.Time           `json:"since"`
	Device          string              `json:"device,omitempty"`
	Pulls           uint64              `json:"pulls"`
	PullFailures    uint64              `json:"pull_failures"`
	Published       uint64              `json:"published"`
	PublishDropped  uint64              `json:"publish_dropped"`
	Recoveries      uint64              `json:"recoveries"`
	LastPublishedAt time.Time           `json:"last_published_at,omitzero"`
	LastSnapshot    *telemetry.Snapshot `json:"last_snapshot,omitempty"`
	LastError       string              `json:"last_error,omitempty"`
}

// Orchestrator runs the link, login, stream and recovery cycle.
//
// Thread Safety:
//   - Run must be called once, from one goroutine.
//   - Status and State are safe for concurrent use.
type Orchestrator struct {
	cfg  Config
	deps Deps
	fsm  *fsm.FSM

	peripheral vehicle.Peripheral
	links      *link.Manager
	session    vehicle.Session
	fatalErr   error

	statusMu sync.RWMutex
	status   Status
}

// New creates an Orchestrator in the linking state.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Sleep == nil {
		deps.Sleep = retry.Sleep
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	o := &Orchestrator{cfg: cfg, deps: deps}
	o.status = Status{State: StateLinking, Since: deps.Now()}
	o.deps.Metrics.setState(StateLinking)

	o.fsm = fsm.NewFSM(
		StateLinking,
		fsm.Events{
			{Name: eventLinked, Src: []string{StateLinking}, Dst: StateAuthenticating},
			{Name: eventAuthenticated, Src: []string{StateAuthenticating, StateRecovering}, Dst: StateStreaming},
			{Name: eventPullFailed, Src: []string{StateStreaming}, Dst: StateRecovering},
			{Name: eventGiveUp, Src: []string{StateLinking, StateAuthenticating, StateRecovering}, Dst: StateFatal},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				o.onEnter(e.Src, e.Dst)
			},
		},
	)
	return o
}

func (o *Orchestrator) onEnter(src, dst string) {
	o.deps.Logger.Info("bridge state changed", "from", src, "to", dst)
	o.deps.Metrics.setState(dst)
	o.updateStatus(func(s *Status) {
		s.State = dst
		s.Since = o.deps.Now()
	})
}

// State returns the current state name.
func (o *Orchestrator) State() string {
	return o.fsm.Current()
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

func (o *Orchestrator) updateStatus(fn func(*Status)) {
	o.statusMu.Lock()
	fn(&o.status)
	o.statusMu.Unlock()
}

// Run resolves the scooter and drives the state machine until ctx is
// cancelled or a fatal condition occurs.
//
// Returns:
//   - error: nil after cancellation, otherwise ErrDeviceUnresolved,
//     ErrLinkExhausted or ErrRelinkExhausted wrapping the cause
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.resolve(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		var err error
		switch o.fsm.Current() {
		case StateLinking:
			err = o.link(ctx)
		case StateAuthenticating:
			err = o.authenticate(ctx)
		case StateStreaming:
			err = o.stream(ctx)
		case StateRecovering:
			err = o.recover(ctx)
		case StateFatal:
			return o.fatalErr
		}

		if ctx.Err() != nil {
			o.deps.Logger.Info("bridge stopping", "state", o.fsm.Current())
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (o *Orchestrator) resolve(ctx context.Context) error {
	o.deps.Logger.Info("waiting for scooter", "mac", o.cfg.MAC.String())

	device, err := o.deps.Scanner.WaitFor(ctx, o.cfg.MAC)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnresolved, o.cfg.MAC, err)
	}
	p, err := o.deps.Scanner.Peripheral(ctx, device)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnresolved, o.cfg.MAC, err)
	}

	o.peripheral = p
	o.updateStatus(func(s *Status) { s.Device = device.Name })
	o.deps.Logger.Info("scooter found", "mac", o.cfg.MAC.String(), "name", device.Name)
	return nil
}

func (o *Orchestrator) newLinkManager(policy retry.Policy) *link.Manager {
	return link.NewManager(o.peripheral, link.Config{
		Policy:      policy,
		SettleDelay: o.cfg.SettleDelay,
		Sleep:       o.deps.Sleep,
		Timer:       o.deps.Timer,
		Logger:      o.deps.Logger,
	})
}

func (o *Orchestrator) link(ctx context.Context) error {
	o.links = o.newLinkManager(o.cfg.InitialLink)
	if _, err := o.links.Connect(ctx); err != nil {
		return o.giveUp(ctx, fmt.Errorf("%w: %w", ErrLinkExhausted, err))
	}
	return o.fire(ctx, eventLinked)
}

func (o *Orchestrator) authenticate(ctx context.Context) error {
	s, err := o.deps.Lifecycle.Establish(ctx, o.links)
	if err != nil {
		return o.giveUp(ctx, fmt.Errorf("%w: %w", ErrLinkExhausted, err))
	}
	o.session = s
	return o.fire(ctx, eventAuthenticated)
}

// stream runs one pull-publish-sleep cycle.
func (o *Orchestrator) stream(ctx context.Context) error {
	start := o.deps.Now()
	snap, err := o.deps.Assembler.Pull(ctx, o.session)
	o.deps.Metrics.PullDuration.Observe(o.deps.Now().Sub(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		o.deps.Logger.Warn("telemetry pull failed", "error", err)
		o.deps.Metrics.Pulls.WithLabelValues("failed").Inc()
		o.updateStatus(func(s *Status) {
			s.PullFailures++
			s.LastError = err.Error()
		})
		return o.fire(ctx, eventPullFailed)
	}
	o.deps.Metrics.Pulls.WithLabelValues("ok").Inc()
	o.updateStatus(func(s *Status) { s.Pulls++ })
	if snap.GPS.Status == gps.NoFixYet {
		o.deps.Metrics.NullIsland.Inc()
	}

	o.publish(snap)
	return o.deps.Sleep(ctx, o.cfg.SendInterval)
}

func (o *Orchestrator) publish(snap telemetry.Snapshot) {
	payload, err := snap.Payload()
	if err != nil {
		o.deps.Logger.Error("snapshot not encodable", "error", err)
		return
	}

	ok := o.deps.Publisher.PublishBestEffort(o.cfg.Topic, payload)
	result := "ok"
	if !ok {
		result = "dropped"
	}
	o.deps.Metrics.Publishes.WithLabelValues(result).Inc()
	o.deps.Logger.Debug("snapshot published", "topic", o.cfg.Topic, "result", result)

	now := o.deps.Now()
	o.updateStatus(func(s *Status) {
		s.LastSnapshot = &snap
		if ok {
			s.Published++
			s.LastPublishedAt = now
		} else {
			s.PublishDropped++
		}
	})
}

// recover rebuilds the link with the relink budget. A link that survived
// keeps its session; otherwise a fresh login runs over the new link.
func (o *Orchestrator) recover(ctx context.Context) error {
	o.deps.Metrics.Recoveries.Inc()
	o.updateStatus(func(s *Status) { s.Recoveries++ })

	o.links = o.newLinkManager(o.cfg.Relink)
	result, err := o.links.Reconnect(ctx)
	if err != nil {
		return o.giveUp(ctx, fmt.Errorf("%w: %w", ErrRelinkExhausted, err))
	}

	if result == link.AlreadyConnected && o.session != nil {
		o.deps.Logger.Info("link survived, reusing session")
		return o.fire(ctx, eventAuthenticated)
	}

	o.session = nil
	s, err := o.deps.Lifecycle.Establish(ctx, o.links)
	if err != nil {
		return o.giveUp(ctx, fmt.Errorf("%w: %w", ErrRelinkExhausted, err))
	}
	o.session = s
	return o.fire(ctx, eventAuthenticated)
}

// giveUp records cause and enters the fatal state. Cancellation is not fatal.
func (o *Orchestrator) giveUp(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return nil
	}
	o.deps.Logger.Error("bridge giving up", "error", cause)
	o.fatalErr = cause
	o.updateStatus(func(s *Status) { s.LastError = cause.Error() })
	return o.fire(ctx, eventGiveUp)
}

func (o *Orchestrator) fire(ctx context.Context, event string) error {
	err := o.fsm.Event(ctx, event)
	if err != nil && !errors.As(err, &fsm.NoTransitionError{}) {
		return fmt.Errorf("bridge: event %s in state %s: %w", event, o.fsm.Current(), err)
	}
	return nil
}
