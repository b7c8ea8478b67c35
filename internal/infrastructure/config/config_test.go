package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearRelayEnv blanks every RELAY_* variable for the duration of the test.
func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "RELAY_") {
			t.Setenv(name, "")
		}
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	clearRelayEnv(t)

	content := `
listener:
  host: "127.0.0.1"
  port: 9100
  idle_timeout: 30
  max_connections: 8
mqtt:
  broker:
    url: "tcp://broker.local:1883"
    client_id: "relay-test"
  qos: 1
  topic_prefix: "factory/line1"
database:
  enabled: true
  path: "/tmp/relay.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "relay.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddress() != "127.0.0.1:9100" {
		t.Errorf("ListenAddress() = %q, want %q", cfg.ListenAddress(), "127.0.0.1:9100")
	}
	if cfg.MQTT.Broker.URL != "tcp://broker.local:1883" {
		t.Errorf("MQTT.Broker.URL = %q, want %q", cfg.MQTT.Broker.URL, "tcp://broker.local:1883")
	}
	if cfg.MQTT.TopicPrefix != "factory/line1" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "factory/line1")
	}
	if cfg.Listener.MaxConnections != 8 {
		t.Errorf("Listener.MaxConnections = %d, want 8", cfg.Listener.MaxConnections)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 30 {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
	// Untouched values keep their defaults.
	if cfg.Listener.BufferSize != 4096 {
		t.Errorf("Listener.BufferSize = %d, want 4096", cfg.Listener.BufferSize)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.ListenAddress() != "0.0.0.0:9000" {
		t.Errorf("ListenAddress() = %q, want %q", cfg.ListenAddress(), "0.0.0.0:9000")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearRelayEnv(t)

	_, err := Load("/nonexistent/path/relay.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearRelayEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "relay.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnparsablePortIsFatal(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("RELAY_BIND_PORT", "nine-thousand")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error for unparsable RELAY_BIND_PORT")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearRelayEnv(t)
	cfg := defaultConfig()

	t.Setenv("RELAY_BIND_HOST", "10.0.0.5")
	t.Setenv("RELAY_BIND_PORT", "7000")
	t.Setenv("RELAY_BROKER_URL", "ssl://mqtt.example.com:8883")
	t.Setenv("RELAY_TOPIC_PREFIX", "sensors")
	t.Setenv("RELAY_QOS", "2")
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	t.Setenv("RELAY_LOG_PATH", "/var/log/relay.log")
	t.Setenv("RELAY_MQTT_USERNAME", "relay")
	t.Setenv("RELAY_MQTT_PASSWORD", "secret")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Listener.Host != "10.0.0.5" {
		t.Errorf("Listener.Host = %q, want %q", cfg.Listener.Host, "10.0.0.5")
	}
	if cfg.Listener.Port != 7000 {
		t.Errorf("Listener.Port = %d, want 7000", cfg.Listener.Port)
	}
	if cfg.MQTT.Broker.URL != "ssl://mqtt.example.com:8883" {
		t.Errorf("MQTT.Broker.URL = %q", cfg.MQTT.Broker.URL)
	}
	if cfg.MQTT.TopicPrefix != "sensors" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "sensors")
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT.QoS = %d, want 2", cfg.MQTT.QoS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.File.Path != "/var/log/relay.log" {
		t.Errorf("Logging.File.Path = %q", cfg.Logging.File.Path)
	}
	if cfg.MQTT.Auth.Username != "relay" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
}

func TestApplyEnvOverrides_QoSFallback(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "numeric", value: "1", want: 1},
		{name: "padded", value: " 2 ", want: 2},
		{name: "garbage defaults to zero", value: "high", want: 0},
		{name: "float defaults to zero", value: "1.5", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearRelayEnv(t)
			cfg := defaultConfig()
			cfg.MQTT.QoS = 1
			t.Setenv("RELAY_QOS", tt.value)

			if err := applyEnvOverrides(cfg); err != nil {
				t.Fatalf("applyEnvOverrides() error = %v", err)
			}
			if cfg.MQTT.QoS != tt.want {
				t.Errorf("MQTT.QoS = %d, want %d", cfg.MQTT.QoS, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing host", mutate: func(c *Config) { c.Listener.Host = "" }, wantErr: true},
		{name: "port zero", mutate: func(c *Config) { c.Listener.Port = 0 }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.Listener.Port = 70000 }, wantErr: true},
		{name: "zero buffer", mutate: func(c *Config) { c.Listener.BufferSize = 0 }, wantErr: true},
		{name: "negative idle timeout", mutate: func(c *Config) { c.Listener.IdleTimeout = -1 }, wantErr: true},
		{name: "negative max connections", mutate: func(c *Config) { c.Listener.MaxConnections = -2 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "missing broker", mutate: func(c *Config) { c.MQTT.Broker.URL = "" }, wantErr: true},
		{name: "missing client id", mutate: func(c *Config) { c.MQTT.Broker.ClientID = "" }, wantErr: true},
		{name: "missing topic prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "" }, wantErr: true},
		{name: "wildcard topic prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "relay/#" }, wantErr: true},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.Listener.RateLimit.Enabled = true
				c.Listener.RateLimit.Burst = 0
			},
			wantErr: true,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "api enabled with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Listener: ListenerConfig{IdleTimeout: 15},
		MQTT:     MQTTConfig{PublishTimeout: 5},
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 15 {
		t.Errorf("GetIdleTimeout() = %v, want 15", got)
	}
	if got := cfg.MQTT.GetPublishTimeout().Seconds(); got != 5 {
		t.Errorf("MQTT.GetPublishTimeout() = %v, want 5", got)
	}
	if got := cfg.API.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("API.GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("API.GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("API.GetIdleTimeout() = %v, want 60", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Listener.BufferSize != 4096 {
		t.Errorf("defaultConfig Listener.BufferSize = %d, want 4096", cfg.Listener.BufferSize)
	}
	if cfg.Listener.MaxConnections != 1 {
		t.Errorf("defaultConfig Listener.MaxConnections = %d, want 1", cfg.Listener.MaxConnections)
	}
	if cfg.MQTT.QoS != 0 {
		t.Errorf("defaultConfig MQTT.QoS = %d, want 0", cfg.MQTT.QoS)
	}
	if cfg.Listener.IdleTimeout != 0 {
		t.Errorf("defaultConfig Listener.IdleTimeout = %d, want 0", cfg.Listener.IdleTimeout)
	}
}
