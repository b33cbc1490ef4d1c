package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration structure for the scooter telemetry services.
// It is loaded once at startup and passed by pointer to every constructor; nothing
// mutates it afterwards.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
	Scooter   ScooterConfig   `yaml:"scooter" toml:"scooter"`
	Serial    SerialConfig    `yaml:"serial" toml:"serial"`
	API       APIConfig       `yaml:"api" toml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" toml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// MQTTConfig contains broker connection settings. Intervals are in seconds.
type MQTTConfig struct {
	Broker               string `yaml:"broker" toml:"broker"`
	Client               string `yaml:"client" toml:"client"`
	Topic                string `yaml:"topic" toml:"topic"`
	Username             string `yaml:"username" toml:"username"`
	Password             string `yaml:"password" toml:"password"`
	KeepAlive            int    `yaml:"keep_alive" toml:"keep_alive"`
	ReconnectMin         int    `yaml:"reconnect_min" toml:"reconnect_min"`
	ReconnectMax         int    `yaml:"reconnect_max" toml:"reconnect_max"`
	SendInterval         int    `yaml:"send_interval" toml:"send_interval"`
	ConnectRetryInterval int    `yaml:"connect_retry_interval" toml:"connect_retry_interval"`
}

// ScooterConfig identifies the vehicle and tunes the link retry profiles.
type ScooterConfig struct {
	MAC           string `yaml:"mac" toml:"mac"`
	TokenFilePath string `yaml:"token_file_path" toml:"token_file_path"`
	Driver        string `yaml:"driver" toml:"driver"`

	// InitialLinkAttempts bounds the very first link. The default of 43200 at
	// one attempt per second waits twelve hours for the vehicle to power on.
	InitialLinkAttempts int `yaml:"initial_link_attempts" toml:"initial_link_attempts"`
	RelinkAttempts      int `yaml:"relink_attempts" toml:"relink_attempts"`
	LinkInterval        int `yaml:"link_interval" toml:"link_interval"`
	SettleDelay         int `yaml:"settle_delay" toml:"settle_delay"`
	LoginRetryInterval  int `yaml:"login_retry_interval" toml:"login_retry_interval"`
}

// SerialConfig contains the GPS modem serial line settings.
type SerialConfig struct {
	Port     string `yaml:"serial_port" toml:"serial_port"`
	BaudRate int    `yaml:"baudrate" toml:"baudrate"`
	Simulate bool   `yaml:"simulate" toml:"simulate"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors" toml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WebSocketConfig contains live stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path" toml:"path"`
	MaxMessageSize int    `yaml:"max_message_size" toml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout" toml:"pong_timeout"`
}

// DatabaseConfig selects and configures the history store.
type DatabaseConfig struct {
	Driver      string `yaml:"driver" toml:"driver"`
	Path        string `yaml:"path" toml:"path"`
	DSN         string `yaml:"dsn" toml:"dsn"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// Database drivers accepted by DatabaseConfig.Driver.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// macHexDigits is the length of a delimiter-free hardware address.
const macHexDigits = 12

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files use TOML, anything else YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SCOOTER_SECTION_KEY
// For example: SCOOTER_MQTT_BROKER, SCOOTER_SERIAL_PORT
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// decode unmarshals data into cfg using the format implied by the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			KeepAlive:            20,
			ReconnectMin:         1,
			ReconnectMax:         60,
			SendInterval:         5,
			ConnectRetryInterval: 3,
		},
		Scooter: ScooterConfig{
			Driver:              "sim",
			InitialLinkAttempts: 43200,
			RelinkAttempts:      5,
			LinkInterval:        1,
			SettleDelay:         5,
			LoginRetryInterval:  2,
		},
		Serial: SerialConfig{
			BaudRate: 115200,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SCOOTER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SCOOTER_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("SCOOTER_MQTT_CLIENT"); v != "" {
		cfg.MQTT.Client = v
	}
	if v := os.Getenv("SCOOTER_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("SCOOTER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("SCOOTER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v, ok := envInt("SCOOTER_MQTT_SEND_INTERVAL"); ok {
		cfg.MQTT.SendInterval = v
	}

	// Scooter
	if v := os.Getenv("SCOOTER_SCOOTER_MAC"); v != "" {
		cfg.Scooter.MAC = v
	}
	if v := os.Getenv("SCOOTER_SCOOTER_TOKEN_FILE_PATH"); v != "" {
		cfg.Scooter.TokenFilePath = v
	}

	// Serial
	if v := os.Getenv("SCOOTER_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v, ok := envInt("SCOOTER_SERIAL_BAUDRATE"); ok {
		cfg.Serial.BaudRate = v
	}

	// Storage
	if v := os.Getenv("SCOOTER_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SCOOTER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// envInt reads an integer environment variable. Unparsable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the sections shared by every service.
//
// Returns:
//   - error: Wraps ErrInvalidConfig and lists every problem found, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.Client == "" {
		errs = append(errs, "mqtt.client is required")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keep_alive must be at least 1 second")
	}
	if c.MQTT.ReconnectMin < 1 {
		errs = append(errs, "mqtt.reconnect_min must be at least 1 second")
	}
	if c.MQTT.ReconnectMax < c.MQTT.ReconnectMin {
		errs = append(errs, "mqtt.reconnect_max must not be less than mqtt.reconnect_min")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database validation
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for pgx")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	return joinErrors(errs)
}

// ValidateBridge checks the sections only the vehicle-side bridge needs.
// It is called after Load by the bridge binary.
func (c *Config) ValidateBridge() error {
	var errs []string

	if c.MQTT.SendInterval < 1 {
		errs = append(errs, "mqtt.send_interval must be at least 1 second")
	}

	// Scooter validation
	if _, err := ParseMAC(c.Scooter.MAC); err != nil {
		errs = append(errs, fmt.Sprintf("scooter.mac: %v", err))
	}
	if c.Scooter.TokenFilePath == "" {
		errs = append(errs, "scooter.token_file_path is required")
	}
	if c.Scooter.InitialLinkAttempts < 1 || c.Scooter.RelinkAttempts < 1 {
		errs = append(errs, "scooter link attempts must be at least 1")
	}

	// Serial validation
	if c.Serial.Port == "" && !c.Serial.Simulate {
		errs = append(errs, "serial.serial_port is required")
	}
	if c.Serial.BaudRate < 1 {
		errs = append(errs, "serial.baudrate must be positive")
	}

	return joinErrors(errs)
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
}

// ParseMAC decodes a hardware address written as 12 hex digits with no delimiters.
func ParseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	s = strings.TrimSpace(s)
	if len(s) != macHexDigits {
		return mac, fmt.Errorf("expected %d hex digits without delimiters, got %q", macHexDigits, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return mac, fmt.Errorf("invalid hex: %w", err)
	}
	copy(mac[:], b)
	return mac, nil
}

// KeepAliveDuration returns the broker keep-alive interval.
func (m MQTTConfig) KeepAliveDuration() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}

// ReconnectBounds returns the broker's automatic reconnect interval bounds.
func (m MQTTConfig) ReconnectBounds() (minInterval, maxInterval time.Duration) {
	return time.Duration(m.ReconnectMin) * time.Second, time.Duration(m.ReconnectMax) * time.Second
}

// SendIntervalDuration returns the pause between telemetry cycles.
func (m MQTTConfig) SendIntervalDuration() time.Duration {
	return time.Duration(m.SendInterval) * time.Second
}

// ConnectRetryDuration returns the pause of the manual startup reconnect loop.
func (m MQTTConfig) ConnectRetryDuration() time.Duration {
	return time.Duration(m.ConnectRetryInterval) * time.Second
}

// LinkIntervalDuration returns the pacing between link connect attempts.
func (s ScooterConfig) LinkIntervalDuration() time.Duration {
	return time.Duration(s.LinkInterval) * time.Second
}

// SettleDelayDuration returns the pause between teardown and reconnect.
func (s ScooterConfig) SettleDelayDuration() time.Duration {
	return time.Duration(s.SettleDelay) * time.Second
}

// LoginRetryDuration returns the pause between failed login attempts.
func (s ScooterConfig) LoginRetryDuration() time.Duration {
	return time.Duration(s.LoginRetryInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
