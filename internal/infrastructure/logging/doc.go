// Package logging provides structured logging for the scooter telemetry services.
//
// This package wraps Go's standard log/slog package so both binaries emit the
// same structured records.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for bench work (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "scooterbridge", version)
//	logger.Info("link established", "mac", mac)
//
// Never log the vehicle auth token or broker credentials.
package logging
