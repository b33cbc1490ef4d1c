// Telemetry ingest: the server-side process.
//
// It subscribes to the telemetry topic, stores every snapshot in the
// history database (SQLite or PostgreSQL), optionally mirrors it into
// InfluxDB, relays it to WebSocket clients, and serves the read-only
// history API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/scooter-telemetry/internal/api"
	"github.com/nerrad567/scooter-telemetry/internal/history"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/scooter-telemetry/internal/ingest"

	_ "github.com/nerrad567/scooter-telemetry/migrations" // registers the embedded schema
)

// Version information - set at build time via ldflags
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	serviceName       = "telemetry-ingest"
	defaultConfigPath = "configs/telemetry-ingest.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// errMigrateUsage is returned for a missing or unknown migrate action.
var errMigrateUsage = errors.New("usage: telemetry-ingest migrate up|down|status")

// runMigrate applies, reverts or lists schema migrations against the
// configured history database, then exits.
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errMigrateUsage
	}
	action := args[0]
	if action != "up" && action != "down" && action != "status" {
		return fmt.Errorf("%w: unknown action %q", errMigrateUsage, action)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(databaseConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Process exits next

	switch action {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintln(out, "migrations applied")
	case "down":
		reverted, err := db.MigrateDown(ctx)
		if err != nil {
			return fmt.Errorf("reverting migration: %w", err)
		}
		if reverted == nil {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		fmt.Fprintf(out, "reverted %s %s\n", reverted.Version, reverted.Name)
	case "status":
		states, err := db.MigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}
		for _, s := range states {
			applied := "pending"
			if s.Applied {
				applied = "applied " + s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%s %s %s\n", s.Version, s.Name, applied)
		}
	}
	return nil
}

// run wires storage, the broker subscription and the API, then blocks
// until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting telemetry ingest",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath)

	db, err := database.Open(databaseConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver(), "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := history.NewSQLRepository(db)
	checks := map[string]api.HealthChecker{"database": db}

	var series ingest.TimeSeries
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		series = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := api.NewHub(log, api.ChannelTelemetry)
	go hub.Run(ctx)

	ingestor, err := ingest.New(ingest.Deps{
		Store:      repo,
		TimeSeries: series,
		Hub:        hub,
		Channel:    api.ChannelTelemetry,
		Metrics:    ingest.NewMetrics(reg),
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating ingestor: %w", err)
	}

	mqttCfg := subscriberConfig(cfg.MQTT)
	mqttClient, err := mqtt.Connect(ctx, mqttCfg, mqtt.WithLogger(log), mqtt.WithoutStatus())
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
	log.Info("MQTT connected", "broker", mqttCfg.Broker, "client_id", mqttCfg.Client)
	checks["mqtt"] = mqttClient

	if err := ingestor.Start(ctx, mqttClient, mqttClient.Topics().Telemetry()); err != nil {
		return fmt.Errorf("starting ingest: %w", err)
	}
	defer func() {
		if stopErr := ingestor.Stop(); stopErr != nil {
			log.Warn("error stopping ingest", "error", stopErr)
		}
	}()
	checks["ingest"] = ingestor

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Version:  version,
			Gatherer: reg,
			History:  repo,
			Hub:      hub,
			Pool:     db,
			Checks:   checks,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("telemetry ingest stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SCOOTER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func databaseConfig(cfg config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		DSN:         cfg.DSN,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	}
}

// subscriberConfig derives the ingest client's broker settings. The client
// id gets a random suffix so a restarted ingest never collides with the
// session of the previous process or with the publishing bridge.
func subscriberConfig(cfg config.MQTTConfig) config.MQTTConfig {
	base := cfg.Client
	if base == "" {
		base = serviceName
	}
	cfg.Client = base + "-ingest-" + uuid.NewString()[:8]
	return cfg
}
