// Smart Home Core - MQTT ingestion and command-dispatch bridge.
//
// The core receives device telemetry over MQTT, stores it, pushes it to
// WebSocket clients, and turns authenticated REST control requests into
// relay commands on the bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/smarthome-core/migrations"

	"github.com/nerrad567/smarthome-core/internal/api"
	"github.com/nerrad567/smarthome-core/internal/control"
	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/ingest"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart home core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	devices := device.NewSQLiteRepository(db.DB)
	records := telemetry.NewSQLiteRepository(db.DB)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected, subscriptions restored")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	persister := telemetry.NewPersister(records)

	// InfluxDB mirror (optional). An unreachable server disables the
	// mirror rather than blocking ingestion.
	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		persister.SetMirror(influxClient)
	}

	// Control path
	topics := mqtt.TopicsFrom(cfg.MQTT.Topics)
	dispatcher := control.NewDispatcher(devices, mqttClient, control.Config{
		Topic:          topics.Control,
		PublishTimeout: cfg.Dispatch.PublishTimeout,
		PersistTimeout: cfg.Dispatch.PersistTimeout,
		LivenessWindow: cfg.Dispatch.LivenessWindow,
		ControlCycle:   cfg.Dispatch.ControlCycle,
	})
	dispatcher.SetLogger(log.Component("control"))
	reconciler := control.NewReconciler(dispatcher)

	// Ingestion
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	router := ingest.NewRouter(ingest.Config{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Topics:    topics,
		QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2 by config
	}, persister, hub)
	router.SetObserver(reconciler)
	router.SetLogger(log.Component("ingest"))

	if startErr := router.Start(ctx); startErr != nil {
		return fmt.Errorf("starting ingest router: %w", startErr)
	}
	defer router.Stop()

	if attachErr := router.Attach(mqttClient); attachErr != nil {
		return fmt.Errorf("subscribing ingest topics: %w", attachErr)
	}
	log.Info("ingest router started",
		"workers", cfg.Ingest.Workers,
		"queue_size", cfg.Ingest.QueueSize,
		"topics", topics.Inbound(),
	)

	// REST API + WebSocket
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.Component("api"),
		Devices:    devices,
		Telemetry:  records,
		Dispatcher: dispatcher,
		Hub:        hub,
		MQTT:       mqttClient,
		Ingest:     router,
		DB:         db.DB,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, ingest drain, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux returns nil without error when the mirror is disabled or unreachable.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB mirror disabled")
		return nil, nil
	case errors.Is(err, influxdb.ErrConnectionFailed):
		log.Warn("InfluxDB unreachable, telemetry mirror disabled", "url", cfg.URL, "error", err)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// healthChecker is satisfied by every infrastructure handle.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when the mirror is off.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	checks := []struct {
		name    string
		checker healthChecker
	}{
		{"database", db},
		{"mqtt", mqttClient},
		{"api", apiServer},
	}
	if influxClient != nil {
		checks = append(checks, struct {
			name    string
			checker healthChecker
		}{"influxdb", influxClient})
	}

	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
