// Scooter bridge: the vehicle-side process.
//
// It links to the scooter over its wireless interface, logs in with the
// stored auth token, and publishes one telemetry snapshot (motor, battery
// and GPS fix) to the MQTT broker every send interval. A failed pull tears
// the link down and relinks; running out of relink attempts ends the process
// with a non-zero status so the supervisor restarts it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/scooter-telemetry/internal/api"
	"github.com/nerrad567/scooter-telemetry/internal/bridge"
	"github.com/nerrad567/scooter-telemetry/internal/gps"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/scooter-telemetry/internal/retry"
	"github.com/nerrad567/scooter-telemetry/internal/session"
	"github.com/nerrad567/scooter-telemetry/internal/telemetry"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle"
	"github.com/nerrad567/scooter-telemetry/internal/vehicle/sim"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	serviceName       = "scooterbridge"
	defaultConfigPath = "configs/scooterbridge.yaml"

	// driverSim is the built-in simulated scooter.
	driverSim = "sim"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge and blocks until ctx is cancelled or the
// orchestrator gives up.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting scooter bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateBridge(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath)

	mac, err := vehicle.ParseMAC(cfg.Scooter.MAC)
	if err != nil {
		return fmt.Errorf("scooter mac: %w", err)
	}
	token, err := vehicle.LoadToken(cfg.Scooter.TokenFilePath)
	if err != nil {
		return fmt.Errorf("loading auth token: %w", err)
	}

	scanner, login, err := openDriver(cfg.Scooter)
	if err != nil {
		return err
	}

	port, err := openModem(cfg.Serial)
	if err != nil {
		return err
	}
	engine, err := gps.NewEngine(port)
	if err != nil {
		port.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("creating GPS engine: %w", err)
	}
	engine.SetLogger(log)
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error closing modem", "error", closeErr)
		}
	}()

	if err := engine.EnableGPS(ctx); err != nil {
		return fmt.Errorf("enabling GPS: %w", err)
	}
	log.Info("GPS enabled", "port", cfg.Serial.Port, "simulated", cfg.Serial.Simulate)

	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.WithLogger(log))
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown before broker connection")
			return nil
		}
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected", "broker", cfg.MQTT.Broker, "client_id", cfg.MQTT.Client)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orchestrator := bridge.New(bridgeConfig(cfg, mac), bridge.Deps{
		Scanner: scanner,
		Lifecycle: session.New(login, token,
			session.WithRetryInterval(cfg.Scooter.LoginRetryDuration()),
			session.WithLogger(log),
		),
		Assembler: telemetry.NewAssembler(engine),
		Publisher: mqttClient,
		Metrics:   bridge.NewMetrics(reg),
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Version:  version,
			Gatherer: reg,
			Bridge:   orchestrator,
			Checks:   map[string]api.HealthChecker{"mqtt": mqttClient},
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	g.Go(func() error {
		return orchestrator.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("bridge stopped", "state", orchestrator.State(), "error", err)
		return err
	}

	log.Info("scooter bridge stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SCOOTER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// bridgeConfig maps the scooter and mqtt sections to the orchestrator config.
func bridgeConfig(cfg *config.Config, mac vehicle.MAC) bridge.Config {
	interval := cfg.Scooter.LinkIntervalDuration()
	return bridge.Config{
		MAC:          mac,
		Topic:        cfg.MQTT.Topic,
		SendInterval: cfg.MQTT.SendIntervalDuration(),
		InitialLink: retry.Policy{
			MaxAttempts: cfg.Scooter.InitialLinkAttempts,
			Interval:    interval,
			Backoff:     retry.Fixed,
		},
		Relink: retry.Policy{
			MaxAttempts: cfg.Scooter.RelinkAttempts,
			Interval:    interval,
			Backoff:     retry.Fixed,
		},
		SettleDelay: cfg.Scooter.SettleDelayDuration(),
	}
}

// openDriver returns the scanner and login requester for the configured
// scooter driver.
func openDriver(cfg config.ScooterConfig) (vehicle.Scanner, vehicle.LoginRequester, error) {
	switch cfg.Driver {
	case "", driverSim:
		scanner := sim.NewScanner(sim.Options{})
		return scanner, scanner.Login(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported scooter driver %q", cfg.Driver)
	}
}

// openModem opens the GPS modem port, or the simulator when serial.simulate is set.
func openModem(cfg config.SerialConfig) (gps.Port, error) {
	if cfg.Simulate {
		return sim.NewModem(sim.ModemOptions{Echo: true, LockAfter: 3}), nil
	}
	port, err := gps.Open(cfg.Port, cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("opening GPS modem: %w", err)
	}
	return port, nil
}
