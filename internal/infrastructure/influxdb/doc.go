// Package influxdb provides the optional InfluxDB sink for ingested telemetry.
//
// It wraps the official influxdb-client-go v2 library. Every snapshot the
// ingest service accepts can be mirrored as two points:
//   - scooter_telemetry: speed, distances, uptime, frame temperature, position
//   - scooter_battery: capacity, charge, voltage, current, power, temperatures
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//	if err := client.WriteSnapshot(topic, snap); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
