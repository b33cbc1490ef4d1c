package history

import (
	"fmt"
	"time"
)

// Page size limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// General is one general_info row.
type General struct {
	Time              time.Time `json:"time"`
	SpeedKmh          float64   `json:"speed_kmh"`
	TripDistanceM     int64     `json:"trip_distance_m"`
	UptimeSec         float64   `json:"uptime_sec"`
	TotalDistanceM    int64     `json:"total_distance_m"`
	EstDistanceLeftKm float64   `json:"est_distance_left_km"`
	FrameTemp         float64   `json:"frame_temp"`
}

// Battery is one battery_info row. Power is voltage times current.
type Battery struct {
	Time     time.Time `json:"time"`
	Capacity int       `json:"capacity"`
	Percent  int       `json:"percent"`
	Voltage  float64   `json:"voltage"`
	Current  float64   `json:"current"`
	Power    float64   `json:"power"`
	Temp1    int       `json:"temp1"`
	Temp2    int       `json:"temp2"`
}

// Location is one location_info row.
type Location struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	GPSSpeed  float64   `json:"gps_speed"`
}

// Entry joins the three tables on time.
type Entry struct {
	Time              time.Time `json:"time"`
	SpeedKmh          float64   `json:"speed_kmh"`
	TripDistanceM     int64     `json:"trip_distance_m"`
	UptimeSec         float64   `json:"uptime_sec"`
	TotalDistanceM    int64     `json:"total_distance_m"`
	EstDistanceLeftKm float64   `json:"est_distance_left_km"`
	FrameTemp         float64   `json:"frame_temp"`
	Capacity          int       `json:"capacity"`
	Percent           int       `json:"percent"`
	Voltage           float64   `json:"voltage"`
	Current           float64   `json:"current"`
	Power             float64   `json:"power"`
	Temp1             int       `json:"temp1"`
	Temp2             int       `json:"temp2"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Altitude          float64   `json:"altitude"`
	GPSSpeed          float64   `json:"gps_speed"`
}

// Filter controls which rows to return. Zero Start or End leaves that side open.
type Filter struct {
	Start  time.Time
	End    time.Time
	Order  string // asc (default) or desc
	Limit  int    // default 50, max 500
	Offset int    // pagination offset
}

// ListResult contains one page of rows.
type ListResult[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// normalize applies defaults and clamps, and rejects an inverted range.
func (f Filter) normalize() (Filter, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return f, fmt.Errorf("%w: start_time is after end_time", ErrInvalidFilter)
	}

	switch f.Order {
	case "":
		f.Order = OrderAsc
	case OrderAsc, OrderDesc:
	default:
		return f, fmt.Errorf("%w: order must be %q or %q", ErrInvalidFilter, OrderAsc, OrderDesc)
	}

	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}
