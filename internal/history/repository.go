package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
)

const (
	insertGeneral = `INSERT INTO general_info
		(time, speed_kmh, trip_distance_m, uptime_sec, total_distance_m, est_distance_left_km, frame_temp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertBattery = `INSERT INTO battery_info
		(time, capacity, percent, voltage, current, temp1, temp2)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertLocation = `INSERT INTO location_info
		(time, latitude, longitude, altitude, gps_speed)
		VALUES (?, ?, ?, ?, ?)`

	entrySource = `general_info g
		JOIN battery_info b ON b.time = g.time
		JOIN location_info l ON l.time = g.time`

	entryColumns = `g.time, g.speed_kmh, g.trip_distance_m, g.uptime_sec, g.total_distance_m,
		g.est_distance_left_km, g.frame_temp,
		b.capacity, b.percent, b.voltage, b.current, b.power, b.temp1, b.temp2,
		l.latitude, l.longitude, l.altitude, l.gps_speed`
)

// Repository defines the interface for telemetry history operations.
type Repository interface {
	Insert(ctx context.Context, s telemetry.Snapshot) error
	ListEntries(ctx context.Context, f Filter) (*ListResult[Entry], error)
	ListGeneral(ctx context.Context, f Filter) (*ListResult[General], error)
	ListBattery(ctx context.Context, f Filter) (*ListResult[Battery], error)
	ListLocation(ctx context.Context, f Filter) (*ListResult[Location], error)
}

// SQLRepository stores history in SQLite or PostgreSQL.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a history repository over an open, migrated database.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Insert writes one snapshot into all three tables in a single transaction.
// Times are stored in UTC.
//
// Returns:
//   - error: ErrExists if the timestamp is already stored, telemetry.ErrMalformed
//     if the timestamp does not parse
func (r *SQLRepository) Insert(ctx context.Context, s telemetry.Snapshot) error {
	at, err := s.Time()
	if err != nil {
		return fmt.Errorf("%w: %w", telemetry.ErrMalformed, err)
	}
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	battery := s.BatteryInfo
	statements := []struct {
		table string
		query string
		args  []any
	}{
		{
			table: "general_info",
			query: insertGeneral,
			args:  []any{at, float64(s.SpeedKmh), int64(s.TripDistanceM), float64(s.UptimeSec),
				int64(s.TotalDistanceM), float64(s.TripDistanceLeftKm), float64(s.FrameTemp)},
		},
		{
			table: "battery_info",
			query: insertBattery,
			args:  []any{at, int64(battery.Capacity), int64(battery.Percent), float64(battery.Voltage),
				float64(battery.Current), int64(battery.Temperature1), int64(battery.Temperature2)},
		},
		{
			table: "location_info",
			query: insertLocation,
			args:  []any{at, s.GPS.Latitude, s.GPS.Longitude, float64(s.GPS.Altitude), float64(s.GPS.Speed)},
		},
	}

	for _, st := range statements {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(st.query), st.args...); err != nil {
			if database.IsDuplicate(err) {
				return fmt.Errorf("%w: %s", ErrExists, s.Timestamp)
			}
			return fmt.Errorf("inserting %s: %w", st.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// ListEntries returns rows joined across the three tables.
func (r *SQLRepository) ListEntries(ctx context.Context, f Filter) (*ListResult[Entry], error) {
	return list(ctx, r.db, entrySource, "g.time", entryColumns, f, func(rows *sql.Rows) (Entry, error) {
		var e Entry
		err := rows.Scan(&e.Time, &e.SpeedKmh, &e.TripDistanceM, &e.UptimeSec, &e.TotalDistanceM,
			&e.EstDistanceLeftKm, &e.FrameTemp,
			&e.Capacity, &e.Percent, &e.Voltage, &e.Current, &e.Power, &e.Temp1, &e.Temp2,
			&e.Latitude, &e.Longitude, &e.Altitude, &e.GPSSpeed)
		return e, err
	})
}

// ListGeneral returns general_info rows.
func (r *SQLRepository) ListGeneral(ctx context.Context, f Filter) (*ListResult[General], error) {
	columns := "time, speed_kmh, trip_distance_m, uptime_sec, total_distance_m, est_distance_left_km, frame_temp"
	return list(ctx, r.db, "general_info", "time", columns, f, func(rows *sql.Rows) (General, error) {
		var g General
		err := rows.Scan(&g.Time, &g.SpeedKmh, &g.TripDistanceM, &g.UptimeSec, &g.TotalDistanceM,
			&g.EstDistanceLeftKm, &g.FrameTemp)
		return g, err
	})
}

// ListBattery returns battery_info rows including the derived power.
func (r *SQLRepository) ListBattery(ctx context.Context, f Filter) (*ListResult[Battery], error) {
	columns := "time, capacity, percent, voltage, current, power, temp1, temp2"
	return list(ctx, r.db, "battery_info", "time", columns, f, func(rows *sql.Rows) (Battery, error) {
		var b Battery
		err := rows.Scan(&b.Time, &b.Capacity, &b.Percent, &b.Voltage, &b.Current, &b.Power, &b.Temp1, &b.Temp2)
		return b, err
	})
}

// ListLocation returns location_info rows.
func (r *SQLRepository) ListLocation(ctx context.Context, f Filter) (*ListResult[Location], error) {
	columns := "time, latitude, longitude, altitude, gps_speed"
	return list(ctx, r.db, "location_info", "time", columns, f, func(rows *sql.Rows) (Location, error) {
		var l Location
		err := rows.Scan(&l.Time, &l.Latitude, &l.Longitude, &l.Altitude, &l.GPSSpeed)
		return l, err
	})
}

// list runs the count and page queries shared by every table.
func list[T any](
	ctx context.Context,
	db *database.DB,
	source, timeColumn, columns string,
	f Filter,
	scan func(*sql.Rows) (T, error),
) (*ListResult[T], error) {
	f, err := f.normalize()
	if err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if !f.Start.IsZero() {
		conditions = append(conditions, timeColumn+" >= ?")
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		conditions = append(conditions, timeColumn+" <= ?")
		args = append(args, f.End.UTC())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE and ORDER BY are built from constants and parameterised conditions.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", source, where) //nolint:gosec // no user input in SQL string
	var total int
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting %s: %w", source, err)
	}

	query := fmt.Sprintf( //nolint:gosec // no user input in SQL string
		"SELECT %s FROM %s %s ORDER BY %s %s LIMIT ? OFFSET ?",
		columns, source, where, timeColumn, strings.ToUpper(f.Order),
	)
	args = append(args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]T, 0, f.Limit)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", source, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", source, err)
	}

	return &ListResult[T]{
		Items:  items,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

// Compile-time interface check.
var _ Repository = (*SQLRepository)(nil)
