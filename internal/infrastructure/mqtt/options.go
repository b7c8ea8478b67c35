package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connect or reconnect.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout applies when the config leaves publish_timeout unset.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from the relay config.
//
// This configures:
//   - Broker URL, taken verbatim from config
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - No background reconnect; Client.Reconnect owns every retry
//   - TLS for ssl://, tls:// and mqtts:// brokers or when broker.tls is set
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.Broker.URL)
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Publish-only client, nothing to keep across sessions.
	opts.SetCleanSession(true)

	// A lost connection stays down until Reconnect is called, so each
	// Connect is a real attempt whose token reports the outcome.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS || isTLSBroker(cfg.Broker.URL) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// isTLSBroker reports whether the broker URL scheme implies TLS.
func isTLSBroker(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "ssl", "tls", "mqtts", "tcps":
		return true
	default:
		return false
	}
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will if the relay drops off the network without
// a clean disconnect, so subscribers to the status topic see it go offline.
//
// QoS: 1, Retained: true
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(topic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
