package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// FixSource samples the GPS receiver. gps.Engine satisfies it.
type FixSource interface {
	GetFix(ctx context.Context) (gps.Fix, error)
}

// Assembler pulls snapshots from a session and a GPS source.
type Assembler struct {
	gps FixSource
	now func() time.Time
}

// NewAssembler creates an Assembler reading positions from source.
func NewAssembler(source FixSource) *Assembler {
	return &Assembler{gps: source, now: time.Now}
}

// SetClock replaces the wall clock used for timestamps.
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

// Pull queries every source once and assembles a Snapshot.
//
// Returns:
//   - Snapshot: Complete snapshot stamped with the local time in RFC3339
//   - error: ErrPull wrapping the first session or GPS transport failure
func (a *Assembler) Pull(ctx context.Context, session vehicle.Session) (Snapshot, error) {
	motor, err := session.MotorInfo(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: motor info: %w", ErrPull, err)
	}
	battery, err := session.BatteryInfo(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: battery info: %w", ErrPull, err)
	}
	left, err := session.DistanceLeftKm(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: distance left: %w", ErrPull, err)
	}
	fix, err := a.gps.GetFix(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: gps: %w", ErrPull, err)
	}

	return Snapshot{
		Timestamp:          a.now().Format(time.RFC3339),
		SpeedKmh:           motor.SpeedKmh,
		TotalDistanceM:     motor.TotalDistanceM,
		TripDistanceM:      motor.TripDistanceM,
		TripDistanceLeftKm: left,
		UptimeSec:          float32(motor.Uptime.Seconds()),
		FrameTemp:          motor.FrameTemperature,
		BatteryInfo:        battery,
		GPS:                fix,
	}, nil
}
