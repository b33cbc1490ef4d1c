package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// Sentinel errors returned by the simulated scooter.
var (
	ErrNotConnected  = errors.New("sim: peripheral not connected")
	ErrConnectFailed = errors.New("sim: connection refused")
	ErrLoginRejected = errors.New("sim: login rejected")
	ErrLinkDropped   = errors.New("sim: link dropped")
)

// Options tunes the failure behaviour of the simulated scooter.
type Options struct {
	// Name is advertised by the scanner.
	Name string
	// ConnectFailures refuses this many connection attempts before accepting one.
	ConnectFailures int
	// DropRate is the per-request probability that the link drops.
	DropRate float64
	// Seed makes failure injection reproducible. Zero uses a random seed.
	Seed uint64
	// Now replaces the wall clock.
	Now func() time.Time
}

// Scanner finds the one simulated scooter.
type Scanner struct {
	opts       Options
	peripheral *Peripheral
}

// NewScanner creates a scanner for a simulated scooter.
func NewScanner(opts Options) *Scanner {
	if opts.Name == "" {
		opts.Name = "MIScooter-sim"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Scanner{
		opts: opts,
		peripheral: &Peripheral{
			failuresLeft: opts.ConnectFailures,
			dropRate:     opts.DropRate,
			rng:          rand.New(rand.NewPCG(seed, seed>>1)), //nolint:gosec // simulation only
		},
	}
}

// WaitFor returns immediately; the simulated scooter is always advertising.
func (s *Scanner) WaitFor(ctx context.Context, mac vehicle.MAC) (vehicle.Device, error) {
	if err := ctx.Err(); err != nil {
		return vehicle.Device{}, err
	}
	return vehicle.Device{MAC: mac, Name: s.opts.Name}, nil
}

// Peripheral returns the shared simulated peripheral.
func (s *Scanner) Peripheral(ctx context.Context, _ vehicle.Device) (vehicle.Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.peripheral, nil
}

// Login returns a LoginRequester bound to this scanner's clock.
func (s *Scanner) Login() *Login {
	return &Login{now: s.opts.Now}
}

// Peripheral is a simulated wireless link.
type Peripheral struct {
	mu           sync.Mutex
	connected    bool
	failuresLeft int
	dropRate     float64
	rng          *rand.Rand

	connectCalls int
}

// IsConnected reports the link state.
func (p *Peripheral) IsConnected(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected, nil
}

// Connect brings the link up unless a refusal is still scheduled.
func (p *Peripheral) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connectCalls++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return ErrConnectFailed
	}
	p.connected = true
	return nil
}

// Disconnect tears the link down.
func (p *Peripheral) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// Drop simulates the scooter going out of range.
func (p *Peripheral) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// ConnectCalls returns how many times Connect was invoked.
func (p *Peripheral) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// request checks the link before a session request and may drop it.
func (p *Peripheral) request() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	if p.dropRate > 0 && p.rng.Float64() < p.dropRate {
		p.connected = false
		return ErrLinkDropped
	}
	return nil
}

// Login performs the simulated handshake.
type Login struct {
	now func() time.Time
}

// NewRequest prepares a handshake over a connected simulated peripheral.
func (l *Login) NewRequest(ctx context.Context, p vehicle.Peripheral, token vehicle.AuthToken) (vehicle.LoginRequest, error) {
	sp, ok := p.(*Peripheral)
	if !ok {
		return nil, fmt.Errorf("sim: unsupported peripheral %T", p)
	}
	connected, err := sp.IsConnected(ctx)
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, ErrNotConnected
	}
	return &loginRequest{peripheral: sp, token: token, now: l.now}, nil
}

type loginRequest struct {
	peripheral *Peripheral
	token      vehicle.AuthToken
	now        func() time.Time
}

// Start accepts any token that is not all zeroes.
func (r *loginRequest) Start(ctx context.Context) (vehicle.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.token == (vehicle.AuthToken{}) {
		return nil, ErrLoginRejected
	}
	if err := r.peripheral.request(); err != nil {
		return nil, err
	}
	return newSession(r.peripheral, r.now), nil
}

// Session is a simulated telemetry session. Readings are derived from the
// time since login, so consecutive pulls drift like a moving scooter.
type Session struct {
	peripheral *Peripheral
	now        func() time.Time
	started    time.Time

	odometerM uint32
}

const (
	cruiseKmh       = 18.0
	fullCapacityMAh = 7800
	packVoltage     = 42.0
	rangeKm         = 30.0
)

func newSession(p *Peripheral, now func() time.Time) *Session {
	return &Session{
		peripheral: p,
		now:        now,
		started:    now(),
		odometerM:  1_234_000,
	}
}

func (s *Session) elapsed() time.Duration {
	return s.now().Sub(s.started)
}

func (s *Session) tripKm() float64 {
	return cruiseKmh * s.elapsed().Hours()
}

// MotorInfo returns speed, distance, uptime and frame temperature.
func (s *Session) MotorInfo(_ context.Context) (vehicle.MotorInfo, error) {
	if err := s.peripheral.request(); err != nil {
		return vehicle.MotorInfo{}, err
	}
	elapsed := s.elapsed()
	tripM := s.tripKm() * 1000
	speed := cruiseKmh + 3*float32Sin(elapsed.Seconds()/30)

	return vehicle.MotorInfo{
		SpeedKmh:         speed,
		TotalDistanceM:   s.odometerM + uint32(tripM),
		TripDistanceM:    int16(min(tripM, 32767)),
		Uptime:           elapsed,
		FrameTemperature: 22 + float32(min(elapsed.Minutes(), 60))/6,
	}, nil
}

// BatteryInfo returns a pack that discharges linearly with distance.
func (s *Session) BatteryInfo(_ context.Context) (vehicle.BatteryInfo, error) {
	if err := s.peripheral.request(); err != nil {
		return vehicle.BatteryInfo{}, err
	}
	used := min(s.tripKm()/rangeKm, 0.95)
	percent := uint16((1 - used) * 100)

	return vehicle.BatteryInfo{
		Capacity:     uint16(fullCapacityMAh * (1 - used)),
		Percent:      percent,
		Voltage:      float32(packVoltage - 8*used),
		Current:      4.2,
		Temperature1: 24,
		Temperature2: 25,
	}, nil
}

// DistanceLeftKm estimates the remaining range.
func (s *Session) DistanceLeftKm(_ context.Context) (float32, error) {
	if err := s.peripheral.request(); err != nil {
		return 0, err
	}
	return float32(max(rangeKm-s.tripKm(), 0)), nil
}

func float32Sin(x float64) float32 {
	return float32(math.Sin(x))
}
