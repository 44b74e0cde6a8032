// MHI HVAC Core - SC-SL4 sync and command-dispatch service
//
// This is the main entry point for the MHI HVAC Core service. It keeps an
// in-memory mirror of every configured indoor unit behind a Mitsubishi Heavy
// Industries SC-SL4 central controller and exposes units and groups over
// MQTT and an HTTP/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/mhi-hvac-core/migrations"

	"github.com/nerrad567/mhi-hvac-core/internal/api"
	"github.com/nerrad567/mhi-hvac-core/internal/bridge"
	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/config"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/database"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/logging"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often expired unit history is deleted.
	pruneInterval = 6 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting MHI HVAC Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"site_id", cfg.Site.ID,
		"controller", cfg.Controller.Name,
		"transport", cfg.Controller.Transport,
	)

	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		db.Close()
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	dom, err := buildDomain(cfg)
	if err != nil {
		return fmt.Errorf("building unit registry: %w", err)
	}
	for _, w := range dom.warnings {
		log.Warn("group configuration", "warning", w)
	}
	dom.registry.SetLogger(log.Component("registry"))
	log.Info("unit registry built",
		"units", len(dom.registry.IDs()),
		"blocks", dom.registry.Blocks(),
		"entities", len(dom.resolver.Entities()),
	)

	dialer, err := buildDialer(cfg.Controller)
	if err != nil {
		return fmt.Errorf("controller transport: %w", err)
	}
	manager, err := sclink.NewManager(managerOptions(cfg.Controller, dialer, dom.registry))
	if err != nil {
		return fmt.Errorf("creating controller link: %w", err)
	}
	manager.SetLogger(log.Component("sclink"))

	tracker := bridge.NewCommandTracker(manager, 0)
	history := hvac.NewSQLiteHistoryRepository(db.DB)

	svc, err := hvac.NewService(hvac.ServiceOptions{
		Registry:  dom.registry,
		Resolver:  dom.resolver,
		ModeSets:  dom.modeSets,
		Presets:   dom.presets,
		Writer:    tracker,
		Refresher: manager,
		Store:     hvac.NewSQLiteModeSetStore(db.DB),
		Device:    deviceInfo(cfg.Controller),
	})
	if err != nil {
		return fmt.Errorf("creating hvac service: %w", err)
	}
	svc.SetLogger(log.Component("hvac"))
	if err := svc.RestoreOverrides(ctx); err != nil {
		log.Warn("restoring mode set overrides failed, using configuration", "error", err)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("closing MQTT connection")
		mqttClient.Close() //nolint:errcheck // best-effort on shutdown
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)

	var influxClient *influxdb.Client
	var telemetry bridge.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			influxClient.Close() //nolint:errcheck // best-effort on shutdown
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("influxdb write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hvacBridge, err := bridge.New(bridge.Options{
		Service:    svc,
		Link:       manager,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Topics:     mqttClient.Topics(),
		QoS:        byte(cfg.MQTT.QoS),
		Version:    version,
		History:    history,
		Tracker:    tracker,
		Telemetry:  telemetry,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}

	// Retained state is lost when the broker restarts without persistence.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing entity state")
		hvacBridge.Republish()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Service:     svc,
			History:     history,
			Controller:  manager,
			Health:      hvacBridge,
			Republisher: hvacBridge,
			DB:          db,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		hvacBridge.AddListener(apiServer.Hub())
	}

	if err := hvacBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting MQTT bridge: %w", err)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		hvacBridge.Stop()
	}()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting controller link: %w", err)
	}
	defer func() {
		log.Info("stopping controller link")
		manager.Stop()
	}()
	log.Info("controller link started", "endpoint", dialer.String())

	if apiServer != nil {
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			apiServer.Close() //nolint:errcheck // best-effort on shutdown
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API server disabled")
	}

	retention := time.Duration(cfg.Database.HistoryRetention) * 24 * time.Hour
	if retention > 0 {
		go pruneHistoryLoop(ctx, history, retention, pruneInterval, log)
	}

	// The controller may still be connecting, so only local infrastructure
	// is checked here.
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, controller link, bridge, InfluxDB, MQTT, database.
	log.Info("MHI HVAC Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MHIHVAC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MHIHVAC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// historyPruner is the part of the history repository the prune loop needs.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistoryLoop deletes unit history older than retention, once at
// startup and then every interval, until ctx is cancelled.
func pruneHistoryLoop(ctx context.Context, repo historyPruner, retention, interval time.Duration, log *logging.Logger) {
	prune := func() {
		pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		n, err := repo.PruneHistory(pruneCtx, retention)
		if err != nil {
			log.Warn("pruning unit history failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("pruned unit history", "rows", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
