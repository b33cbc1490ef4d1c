package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle/sim"
)

const bridgeConfigYAML = `
mqtt:
  broker: "tcp://127.0.0.1:1883"
  client: "martinete"
  topic: "scooter/telemetry"
  send_interval: 5
scooter:
  mac: "D5E3A1B2C3F4"
  token_file_path: "%TOKEN%"
  relink_attempts: 7
serial:
  simulate: true
logging:
  level: error
  format: text
api:
  enabled: false
`

// writeBridgeConfig writes a bridge config pointing at tokenPath and
// selects it through SCOOTER_CONFIG.
func writeBridgeConfig(t *testing.T, content, tokenPath string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scooterbridge.yaml")
	content = strings.ReplaceAll(content, "%TOKEN%", tokenPath)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SCOOTER_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SCOOTER_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

// TestRun_BridgeValidation verifies the bridge-only checks run before any I/O.
func TestRun_BridgeValidation(t *testing.T) {
	writeBridgeConfig(t, strings.Replace(bridgeConfigYAML, `mac: "D5E3A1B2C3F4"`, `mac: "D5:E3:A1:B2:C3:F4"`, 1), "token")

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "scooter.mac") {
		t.Fatalf("run() error = %v, want scooter.mac validation failure", err)
	}
}

// TestRun_MissingToken verifies a missing token file is fatal at startup.
func TestRun_MissingToken(t *testing.T) {
	writeBridgeConfig(t, bridgeConfigYAML, filepath.Join(t.TempDir(), "missing_token"))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "loading auth token") {
		t.Fatalf("run() error = %v, want token load failure", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SCOOTER_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("SCOOTER_CONFIG", "/etc/scooter/martinete.toml")
	if got := getConfigPath(); got != "/etc/scooter/martinete.toml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

func TestBridgeConfig(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{Topic: "scooter/telemetry", SendInterval: 5},
		Scooter: config.ScooterConfig{
			InitialLinkAttempts: 43200,
			RelinkAttempts:      5,
			LinkInterval:        1,
			SettleDelay:         5,
		},
	}
	mac := vehicle.MAC{0xD5, 0xE3, 0xA1, 0xB2, 0xC3, 0xF4}

	got := bridgeConfig(cfg, mac)

	if got.MAC != mac || got.Topic != "scooter/telemetry" {
		t.Errorf("identity = %v %q", got.MAC, got.Topic)
	}
	if got.SendInterval != 5*time.Second || got.SettleDelay != 5*time.Second {
		t.Errorf("pacing = %v send, %v settle, want 5s each", got.SendInterval, got.SettleDelay)
	}
	wantInitial := retry.Policy{MaxAttempts: 43200, Interval: time.Second, Backoff: retry.Fixed}
	if got.InitialLink != wantInitial {
		t.Errorf("InitialLink = %+v, want %+v", got.InitialLink, wantInitial)
	}
	wantRelink := retry.Policy{MaxAttempts: 5, Interval: time.Second, Backoff: retry.Fixed}
	if got.Relink != wantRelink {
		t.Errorf("Relink = %+v, want %+v", got.Relink, wantRelink)
	}
}

func TestOpenDriver(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr bool
	}{
		{driver: ""},
		{driver: driverSim},
		{driver: "bluez", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			scanner, login, err := openDriver(config.ScooterConfig{Driver: tt.driver})
			if tt.wantErr {
				if err == nil {
					t.Error("openDriver() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openDriver() error = %v", err)
			}
			if _, ok := scanner.(*sim.Scanner); !ok {
				t.Errorf("scanner = %T, want *sim.Scanner", scanner)
			}
			if login == nil {
				t.Error("login requester is nil")
			}
		})
	}
}

func TestOpenModem(t *testing.T) {
	port, err := openModem(config.SerialConfig{Simulate: true})
	if err != nil {
		t.Fatalf("openModem(simulate) error = %v", err)
	}
	if _, ok := port.(*sim.Modem); !ok {
		t.Errorf("port = %T, want *sim.Modem", port)
	}

	if _, err := openModem(config.SerialConfig{Port: "/dev/does-not-exist", BaudRate: 115200}); err == nil {
		t.Error("openModem() on a missing device should fail")
	}
}
