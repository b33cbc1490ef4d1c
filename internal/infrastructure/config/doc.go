// Package config handles loading and validating the scooter telemetry configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with environment variables
//   - Validation of required fields, split into shared and bridge-only checks
//   - Default value handling
//
// The field devices ship a TOML file; services deployed next to the broker
// usually use YAML. Both decode into the same Config.
//
// Security Considerations:
//   - Broker passwords and database DSNs should be set via environment variables
//   - The vehicle auth token lives in its own file, never in the config
//
// Usage:
//
//	cfg, err := config.Load("martinete.toml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.ValidateBridge(); err != nil {
//	    return err
//	}
package config
