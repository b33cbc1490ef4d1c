package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
mqtt:
  broker: "tcp://localhost:1883"
  client: "scooter-01"
  topic: "scooter/telemetry"
  keep_alive: 20
  reconnect_min: 1
  reconnect_max: 30
  send_interval: 5
scooter:
  mac: "D5E3A1B2C3F4"
  token_file_path: "/etc/scooter/token"
serial:
  serial_port: "/dev/ttyUSB2"
  baudrate: 115200
`

const validTOML = `
[mqtt]
broker = "tcp://broker.local:1883"
client = "martinete"
topic = "scooter/telemetry"
keep_alive = 30
reconnect_min = 2
reconnect_max = 64
send_interval = 10

[scooter]
mac = "d5e3a1b2c3f4"
token_file_path = "mi_token"

[serial]
serial_port = "/dev/ttyUSB3"
baudrate = 9600
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if cfg.Serial.Port != "/dev/ttyUSB2" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Serial.Port, "/dev/ttyUSB2")
	}
	if cfg.Scooter.RelinkAttempts != 5 {
		t.Errorf("Scooter.RelinkAttempts = %d, want default 5", cfg.Scooter.RelinkAttempts)
	}
	if err := cfg.ValidateBridge(); err != nil {
		t.Errorf("ValidateBridge() error = %v", err)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "martinete.toml", validTOML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Client != "martinete" {
		t.Errorf("MQTT.Client = %q, want %q", cfg.MQTT.Client, "martinete")
	}
	if cfg.MQTT.SendInterval != 10 {
		t.Errorf("MQTT.SendInterval = %d, want 10", cfg.MQTT.SendInterval)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("Serial.BaudRate = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.Scooter.TokenFilePath != "mi_token" {
		t.Errorf("Scooter.TokenFilePath = %q, want %q", cfg.Scooter.TokenFilePath, "mi_token")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "[mqtt\nbroker = "))
	if err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "mqtt:\n  client: \"x\"\n"))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want wrapped ErrInvalidConfig", err)
	}
}

// ============================================================================
// Validation
// ============================================================================

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.Client = "scooter-01"
	cfg.MQTT.Topic = "scooter/telemetry"
	cfg.Scooter.MAC = "D5E3A1B2C3F4"
	cfg.Scooter.TokenFilePath = "/etc/scooter/token"
	cfg.Serial.Port = "/dev/ttyUSB2"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(_ *Config) {},
		},
		{
			name:    "missing broker",
			modify:  func(c *Config) { c.MQTT.Broker = "" },
			wantErr: "mqtt.broker",
		},
		{
			name:    "missing topic",
			modify:  func(c *Config) { c.MQTT.Topic = "" },
			wantErr: "mqtt.topic",
		},
		{
			name: "reconnect bounds inverted",
			modify: func(c *Config) {
				c.MQTT.ReconnectMin = 10
				c.MQTT.ReconnectMax = 5
			},
			wantErr: "mqtt.reconnect_max",
		},
		{
			name: "api port out of range",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: "api.port",
		},
		{
			name:   "api port ignored when disabled",
			modify: func(c *Config) { c.API.Port = 0 },
		},
		{
			name:    "unknown database driver",
			modify:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "pgx without dsn",
			modify:  func(c *Config) { c.Database.Driver = DriverPostgres },
			wantErr: "database.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateBridge(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(_ *Config) {},
		},
		{
			name:    "mac with delimiters",
			modify:  func(c *Config) { c.Scooter.MAC = "D5:E3:A1:B2:C3:F4" },
			wantErr: "scooter.mac",
		},
		{
			name:    "mac not hex",
			modify:  func(c *Config) { c.Scooter.MAC = "ZZE3A1B2C3F4" },
			wantErr: "scooter.mac",
		},
		{
			name:    "missing token path",
			modify:  func(c *Config) { c.Scooter.TokenFilePath = "" },
			wantErr: "scooter.token_file_path",
		},
		{
			name:    "zero relink attempts",
			modify:  func(c *Config) { c.Scooter.RelinkAttempts = 0 },
			wantErr: "link attempts",
		},
		{
			name:    "missing serial port",
			modify:  func(c *Config) { c.Serial.Port = "" },
			wantErr: "serial.serial_port",
		},
		{
			name: "simulated modem needs no port",
			modify: func(c *Config) {
				c.Serial.Port = ""
				c.Serial.Simulate = true
			},
		},
		{
			name:    "zero send interval",
			modify:  func(c *Config) { c.MQTT.SendInterval = 0 },
			wantErr: "mqtt.send_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.ValidateBridge()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateBridge() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateBridge() error = %v, want it to contain %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ValidateBridge() error = %v, want wrapped ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC(" d5e3a1b2c3f4 ")
	if err != nil {
		t.Fatalf("ParseMAC() error = %v", err)
	}
	want := [6]byte{0xD5, 0xE3, 0xA1, 0xB2, 0xC3, 0xF4}
	if mac != want {
		t.Errorf("ParseMAC() = %X, want %X", mac, want)
	}

	if _, err := ParseMAC("D5E3A1"); err == nil {
		t.Error("ParseMAC() expected error for short address")
	}
}

// ============================================================================
// Environment overrides and durations
// ============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCOOTER_MQTT_BROKER", "tcp://override:1883")
	t.Setenv("SCOOTER_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("SCOOTER_SERIAL_BAUDRATE", "57600")
	t.Setenv("SCOOTER_MQTT_SEND_INTERVAL", "not-a-number")

	cfg := validConfig()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker != "tcp://override:1883" {
		t.Errorf("MQTT.Broker = %q, want override", cfg.MQTT.Broker)
	}
	if cfg.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("Serial.Port = %q, want /dev/ttyACM0", cfg.Serial.Port)
	}
	if cfg.Serial.BaudRate != 57600 {
		t.Errorf("Serial.BaudRate = %d, want 57600", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.SendInterval != 5 {
		t.Errorf("MQTT.SendInterval = %d, want unparsable override ignored", cfg.MQTT.SendInterval)
	}
}

func TestDurations(t *testing.T) {
	cfg := validConfig()

	if got := cfg.MQTT.KeepAliveDuration(); got != 20*time.Second {
		t.Errorf("KeepAliveDuration() = %v, want 20s", got)
	}
	minInterval, maxInterval := cfg.MQTT.ReconnectBounds()
	if minInterval != time.Second || maxInterval != time.Minute {
		t.Errorf("ReconnectBounds() = %v, %v, want 1s, 1m0s", minInterval, maxInterval)
	}
	if got := cfg.MQTT.ConnectRetryDuration(); got != 3*time.Second {
		t.Errorf("ConnectRetryDuration() = %v, want 3s", got)
	}
	if got := cfg.Scooter.SettleDelayDuration(); got != 5*time.Second {
		t.Errorf("SettleDelayDuration() = %v, want 5s", got)
	}
	if got := cfg.Scooter.LoginRetryDuration(); got != 2*time.Second {
		t.Errorf("LoginRetryDuration() = %v, want 2s", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
}
