package influxdb

import (
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
)

// Measurement names written for each snapshot.
const (
	MeasurementTelemetry = "scooter_telemetry"
	MeasurementBattery   = "scooter_battery"
)

// WriteSnapshot queues one snapshot as a scooter_telemetry point and a
// scooter_battery point stamped with the snapshot's own time.
// The write is non-blocking; failures arrive through SetOnError.
//
// Parameters:
//   - topic: the broker topic the snapshot arrived on, stored as a tag
//   - s: the decoded snapshot
//
// Returns:
//   - error: ErrNotConnected after Close, or ErrWriteFailed if the
//     timestamp does not parse
func (c *Client) WriteSnapshot(topic string, s telemetry.Snapshot) error {
	points, err := snapshotPoints(topic, s)
	if err != nil {
		return err
	}

	// Held across the writes so Close cannot shut the write API under them.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	for _, p := range points {
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// snapshotPoints converts a snapshot into its two points.
func snapshotPoints(topic string, s telemetry.Snapshot) ([]*write.Point, error) {
	at, err := s.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	gpsTag := "fix"
	if s.GPS.IsNullIsland() {
		gpsTag = "none"
	}

	motion := write.NewPoint(
		MeasurementTelemetry,
		map[string]string{
			"topic": topic,
			"gps":   gpsTag,
		},
		map[string]any{
			"speed_kmh":             float64(s.SpeedKmh),
			"total_distance_m":      int64(s.TotalDistanceM),
			"trip_distance_m":       int64(s.TripDistanceM),
			"trip_distance_left_km": float64(s.TripDistanceLeftKm),
			"uptime_sec":            float64(s.UptimeSec),
			"frame_temp":            float64(s.FrameTemp),
			"latitude":              s.GPS.Latitude,
			"longitude":             s.GPS.Longitude,
			"altitude":              float64(s.GPS.Altitude),
			"gps_speed":             float64(s.GPS.Speed),
		},
		at,
	)

	b := s.BatteryInfo
	battery := write.NewPoint(
		MeasurementBattery,
		map[string]string{
			"topic": topic,
		},
		map[string]any{
			"capacity":      int64(b.Capacity),
			"percent":       int64(b.Percent),
			"voltage":       float64(b.Voltage),
			"current":       float64(b.Current),
			"power":         float64(b.Power()),
			"temperature_1": int64(b.Temperature1),
			"temperature_2": int64(b.Temperature2),
		},
		at,
	)

	return []*write.Point{motion, battery}, nil
}
