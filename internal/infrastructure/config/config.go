package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the relay.
// Values come from defaults, an optional YAML file, and environment variables.
type Config struct {
	Listener ListenerConfig `yaml:"listener"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	TSDB     TSDBConfig     `yaml:"tsdb"`
	API      APIConfig      `yaml:"api"`
}

// ListenerConfig contains the inbound TCP listener settings.
type ListenerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BufferSize is the size of the per-connection read buffer in bytes.
	// Each read fills at most this many bytes and becomes one message.
	BufferSize int `yaml:"buffer_size"`

	// IdleTimeout closes a connection that sends nothing for this many seconds.
	// 0 disables the timeout.
	IdleTimeout int `yaml:"idle_timeout"`

	// MaxConnections bounds the number of connections relayed at once.
	// 0 or 1 relays one connection at a time.
	MaxConnections int `yaml:"max_connections"`

	// KeepAlive is the TCP keepalive period in seconds. 0 leaves the OS default.
	KeepAlive int `yaml:"keep_alive"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits how often a single client IP may connect.
type RateLimitConfig struct {
	Enabled              bool    `yaml:"enabled"`
	ConnectionsPerSecond float64 `yaml:"connections_per_second"`
	Burst                int     `yaml:"burst"`
	CleanupInterval      int     `yaml:"cleanup_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	TopicPrefix    string              `yaml:"topic_prefix"`
	PublishTimeout int                 `yaml:"publish_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// URL is the broker address, e.g. "tcp://localhost:1883" or "ssl://broker:8883".
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	TLS      bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// BreakerThreshold is the number of consecutive failed reconnects after
	// which reconnect attempts are suspended. 0 disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerReset is how long (seconds) reconnects stay suspended.
	BreakerReset int `yaml:"breaker_reset"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// An empty Path disables the file sink.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig contains SQLite settings for the session store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, if path is non-empty
//  3. Environment variables (RELAY_*)
//
// Parameters:
//   - path: Path to a YAML configuration file, or "" to use defaults and environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns the built-in defaults:
// serial relaying, 4 KiB reads, QoS 0, no idle timeout.
func defaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Host:           "0.0.0.0",
			Port:           9000,
			BufferSize:     4096,
			MaxConnections: 1,
			RateLimit: RateLimitConfig{
				ConnectionsPerSecond: 10,
				Burst:                20,
				CleanupInterval:      60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				URL:      "tcp://localhost:1883",
				ClientID: "gray-logic-relay",
			},
			QoS:            0,
			TopicPrefix:    "relay",
			PublishTimeout: 5,
			Reconnect: MQTTReconnectConfig{
				BreakerReset: 30,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/relay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies RELAY_* environment variables to the configuration.
//
// RELAY_QOS falls back to 0 when it is not a number. Other numeric variables
// that fail to parse are reported as errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a number", name, v))
			return
		}
		*dst = n
	}

	// Listener
	setString("RELAY_BIND_HOST", &cfg.Listener.Host)
	setInt("RELAY_BIND_PORT", &cfg.Listener.Port)
	setInt("RELAY_MAX_CONNECTIONS", &cfg.Listener.MaxConnections)
	setInt("RELAY_IDLE_TIMEOUT", &cfg.Listener.IdleTimeout)

	// MQTT
	setString("RELAY_BROKER_URL", &cfg.MQTT.Broker.URL)
	setString("RELAY_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	setString("RELAY_MQTT_CLIENT_ID", &cfg.MQTT.Broker.ClientID)
	setString("RELAY_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("RELAY_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	if v := os.Getenv("RELAY_QOS"); v != "" {
		qos, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			qos = 0
		}
		cfg.MQTT.QoS = qos
	}

	// Logging
	setString("RELAY_LOG_LEVEL", &cfg.Logging.Level)
	setString("RELAY_LOG_PATH", &cfg.Logging.File.Path)

	// Storage and telemetry
	setString("RELAY_DATABASE_PATH", &cfg.Database.Path)
	setString("RELAY_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	if len(errs) > 0 {
		return fmt.Errorf("environment errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Listener
	if c.Listener.Host == "" {
		errs = append(errs, "listener.host is required")
	}
	if c.Listener.Port < 1 || c.Listener.Port > 65535 {
		errs = append(errs, "listener.port must be between 1 and 65535")
	}
	if c.Listener.BufferSize < 1 {
		errs = append(errs, "listener.buffer_size must be positive")
	}
	if c.Listener.IdleTimeout < 0 {
		errs = append(errs, "listener.idle_timeout cannot be negative")
	}
	if c.Listener.MaxConnections < 0 {
		errs = append(errs, "listener.max_connections cannot be negative")
	}
	if c.Listener.RateLimit.Enabled {
		if c.Listener.RateLimit.ConnectionsPerSecond <= 0 {
			errs = append(errs, "listener.rate_limit.connections_per_second must be positive")
		}
		if c.Listener.RateLimit.Burst < 1 {
			errs = append(errs, "listener.rate_limit.burst must be at least 1")
		}
	}

	// MQTT
	if c.MQTT.Broker.URL == "" {
		errs = append(errs, "mqtt.broker.url is required")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	} else if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix cannot contain wildcards")
	}
	if c.MQTT.Reconnect.BreakerThreshold < 0 {
		errs = append(errs, "mqtt.reconnect.breaker_threshold cannot be negative")
	}

	// Storage
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the session store is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required when tsdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ListenAddress returns the host:port the relay listens on.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Listener.Host, c.Listener.Port)
}

// GetIdleTimeout returns the per-connection idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Listener.IdleTimeout) * time.Second
}

// GetPublishTimeout returns the MQTT publish acknowledgement timeout as a Duration.
func (c MQTTConfig) GetPublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API keep-alive idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
