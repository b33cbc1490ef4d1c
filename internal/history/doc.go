// Package history stores ingested telemetry snapshots and serves them back
// as paginated, time-filtered lists.
//
// Each snapshot becomes one row in each of three tables, keyed by the
// snapshot timestamp:
//   - general_info: speed, distances, uptime, frame temperature
//   - battery_info: capacity, charge, voltage, current, derived power
//   - location_info: latitude, longitude, altitude, GPS speed
//
// The repository runs on either SQLite or PostgreSQL through the
// database package.
package history
