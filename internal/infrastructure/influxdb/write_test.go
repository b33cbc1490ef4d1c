package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
)

func TestSnapshotPoints(t *testing.T) {
	snap := telemetry.Snapshot{
		Timestamp:      "2024-07-15T16:20:16+02:00",
		SpeedKmh:       18.5,
		TotalDistanceM: 123456,
		TripDistanceM:  -3,
		FrameTemp:      24.5,
		BatteryInfo: vehicle.BatteryInfo{
			Capacity: 7800,
			Percent:  87,
			Voltage:  40,
			Current:  2.5,
		},
		GPS: gps.NullIsland(),
	}

	points, err := snapshotPoints("scooter/telemetry", snap)
	if err != nil {
		t.Fatalf("snapshotPoints() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("snapshotPoints() = %d points, want 2", len(points))
	}

	want := time.Date(2024, 7, 15, 14, 20, 16, 0, time.UTC)
	for _, p := range points {
		if !p.Time().Equal(want) {
			t.Errorf("%s time = %v, want %v", p.Name(), p.Time(), want)
		}
	}

	tests := []struct {
		point int
		name  string
		tags  map[string]string
		field string
		value any
	}{
		{0, MeasurementTelemetry, map[string]string{"topic": "scooter/telemetry", "gps": "none"}, "speed_kmh", 18.5},
		{0, MeasurementTelemetry, nil, "trip_distance_m", int64(-3)},
		{0, MeasurementTelemetry, nil, "total_distance_m", int64(123456)},
		{0, MeasurementTelemetry, nil, "latitude", 0.0},
		{1, MeasurementBattery, map[string]string{"topic": "scooter/telemetry"}, "power", 100.0},
		{1, MeasurementBattery, nil, "capacity", int64(7800)},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.field, func(t *testing.T) {
			p := points[tt.point]
			if p.Name() != tt.name {
				t.Fatalf("Name() = %q, want %q", p.Name(), tt.name)
			}
			for key, value := range tt.tags {
				found := false
				for _, tag := range p.TagList() {
					if tag.Key == key {
						found = true
						if tag.Value != value {
							t.Errorf("tag %s = %q, want %q", key, tag.Value, value)
						}
					}
				}
				if !found {
					t.Errorf("tag %s missing", key)
				}
			}
			for _, f := range p.FieldList() {
				if f.Key == tt.field {
					if f.Value != tt.value {
						t.Errorf("field %s = %v (%T), want %v (%T)", tt.field, f.Value, f.Value, tt.value, tt.value)
					}
					return
				}
			}
			t.Errorf("field %s missing", tt.field)
		})
	}
}

func TestSnapshotPoints_BadTimestamp(t *testing.T) {
	_, err := snapshotPoints("scooter/telemetry", telemetry.Snapshot{Timestamp: "yesterday"})
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("snapshotPoints() error = %v, want ErrWriteFailed", err)
	}
}
