// Gray Logic Relay - TCP to MQTT relay
//
// Every byte chunk read from an accepted TCP connection is published as one
// MQTT message on <topic_prefix>/<client-ip>. The relay never writes back
// to the TCP client.
//
// Configuration comes from the YAML file named by RELAY_CONFIG (optional)
// and RELAY_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-relay/internal/ratelimit"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/internal/session"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks in the accept loop until ctx is
// cancelled. Startup failures are returned; per-connection failures never are.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file", cfg.Logging.File.Path,
		"config", configPath,
	)

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
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT session established", "status_topic", mqttClient.StatusTopic())
	})
	log.Info("MQTT connected",
		"broker", cfg.MQTT.Broker.URL,
		"client_id", cfg.MQTT.Broker.ClientID,
		"qos", cfg.MQTT.QoS,
		"topic_prefix", cfg.MQTT.TopicPrefix,
	)

	var recorders relay.Recorders
	apiDeps := api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Broker:  mqttClient,
		Version: version,
	}

	if cfg.Database.Enabled {
		db, repo, dbErr := openSessionStore(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		recorders = append(recorders, &sessionRecorder{repo: repo, log: log})
		apiDeps.Database = db
		apiDeps.Sessions = repo
	} else {
		log.Info("session recording disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		recorders = append(recorders, relay.NewPointRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	if cfg.TSDB.Enabled {
		tsdbClient, tsdbErr := tsdb.Connect(ctx, cfg.TSDB)
		if tsdbErr != nil {
			return fmt.Errorf("connecting to TSDB: %w", tsdbErr)
		}
		defer func() {
			log.Info("closing TSDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing TSDB", "error", closeErr)
			}
		}()
		tsdbClient.SetOnError(func(err error) {
			log.Error("TSDB write error", "error", err)
		})
		recorders = append(recorders, relay.NewPointRecorder(tsdbClient))
		apiDeps.Telemetry = tsdbClient
		log.Info("TSDB connected", "url", cfg.TSDB.URL)
	}

	opts := relay.ServerOptions{
		Address: cfg.ListenAddress(),
		Relay: relay.Config{
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
			BufferSize:  cfg.Listener.BufferSize,
			IdleTimeout: cfg.GetIdleTimeout(),
		},
		MaxConnections:   cfg.Listener.MaxConnections,
		KeepAlive:        time.Duration(cfg.Listener.KeepAlive) * time.Second,
		BreakerThreshold: cfg.MQTT.Reconnect.BreakerThreshold,
		BreakerReset:     time.Duration(cfg.MQTT.Reconnect.BreakerReset) * time.Second,
		Broker:           &brokerAdapter{client: mqttClient},
		Logger:           log,
		Recorder:         recorders,
	}

	if cfg.Listener.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.Listener.RateLimit)
		defer limiter.Stop()
		opts.Limiter = limiter
		log.Info("per-IP connection rate limit enabled",
			"connections_per_second", cfg.Listener.RateLimit.ConnectionsPerSecond,
			"burst", cfg.Listener.RateLimit.Burst,
		)
	}

	server, err := relay.NewServer(opts)
	if err != nil {
		return fmt.Errorf("creating relay server: %w", err)
	}
	if err := server.Listen(); err != nil {
		return err
	}

	if cfg.API.Enabled {
		apiDeps.Relay = server
		apiServer, apiErr := api.New(apiDeps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, relaying",
		"max_connections", cfg.Listener.MaxConnections,
		"buffer_size", cfg.Listener.BufferSize,
	)

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("accept loop: %w", err)
	}

	snap := server.Stats().Snapshot()
	log.Info("Gray Logic Relay stopped",
		"connections_accepted", snap.Accepted,
		"messages_published", snap.Messages,
		"bytes_published", snap.Bytes,
	)
	return nil
}

// getConfigPath returns RELAY_CONFIG; empty means defaults plus environment.
func getConfigPath() string {
	return os.Getenv("RELAY_CONFIG")
}

// openSessionStore opens SQLite, applies migrations and returns the repository.
func openSessionStore(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, session.Repository, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info("session store ready", "path", cfg.Path)
	return db, session.NewSQLiteRepository(db.DB), nil
}
