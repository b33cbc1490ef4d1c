package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

// Snapshot is one published telemetry message.
type Snapshot struct {
	Timestamp          string              `json:"timestamp"`
	SpeedKmh           float32             `json:"speed_kmh"`
	TotalDistanceM     uint32              `json:"total_distance_m"`
	TripDistanceM      int16               `json:"trip_distance_m"`
	TripDistanceLeftKm float32             `json:"trip_distance_left_km"`
	UptimeSec          float32             `json:"uptime_sec"`
	FrameTemp          float32             `json:"frame_temp"`
	BatteryInfo        vehicle.BatteryInfo `json:"battery_info"`
	GPS                gps.Fix             `json:"gps"`
}

// Payload encodes the snapshot for the broker.
func (s Snapshot) Payload() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return b, nil
}

// Time parses Timestamp.
func (s Snapshot) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing snapshot timestamp %q: %w", s.Timestamp, err)
	}
	return t, nil
}

// Decode parses a broker payload back into a Snapshot.
//
// Returns:
//   - Snapshot: The decoded snapshot
//   - error: ErrMalformed if the payload is not a snapshot
func Decode(payload []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if _, err := s.Time(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}
