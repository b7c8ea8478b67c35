package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with the relay's connection handling.
//
// It provides connection management, bounded publishing, an explicit
// blocking Reconnect for callers that check liveness before each
// session, and retained online/offline status with a Last Will.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Concurrent Reconnect calls are serialised.
type Client struct {
	client         pahomqtt.Client
	options        *pahomqtt.ClientOptions
	cfg            config.MQTTConfig
	statusTopic    string
	publishTimeout time.Duration

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// reconnectMu serialises explicit reconnect attempts.
	reconnectMu sync.Mutex

	// onConnect is invoked on every established connection (optional).
	onConnect  func()
	callbackMu sync.RWMutex

	// logger for connection event logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament on the status topic
//  3. Attempts initial connection with timeout
//  4. Publishes retained online status once connected
//
// A connection lost later is not retried in the background; callers
// restore it with Reconnect.
//
// Parameters:
//   - cfg: MQTT configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnectHandler runs asynchronously; make IsConnected true now.
	c.setConnected(true)

	return c, nil
}

// newClient builds a Client and its paho handle without connecting.
func newClient(cfg config.MQTTConfig) *Client {
	statusTopic := Topics{Prefix: cfg.TopicPrefix}.Status()

	opts := buildClientOptions(cfg)
	configureLWT(opts, statusTopic, cfg.Broker.ClientID)

	publishTimeout := cfg.GetPublishTimeout()
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	c := &Client{
		cfg:            cfg,
		options:        opts,
		statusTopic:    statusTopic,
		publishTimeout: publishTimeout,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)

	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "broker", c.cfg.Broker.URL, "error", err)
	}
}

// publishOnlineStatus publishes the relay's retained online status.
func (c *Client) publishOnlineStatus() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(c.statusTopic, 1, true, payload)
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// Reconnect re-establishes the broker connection and blocks until it is
// open or the attempt fails.
//
// It is a no-op when the connection is already open. Each call makes one
// connection attempt bounded by the connect timeout. Concurrent calls are
// serialised, so callers queued behind a successful attempt return nil.
//
// Returns:
//   - error: nil once connected, or wrapped ErrReconnectFailed
func (c *Client) Reconnect() error {
	if c.client == nil {
		return ErrNotConnected
	}

	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	if logger := c.getLogger(); logger != nil {
		logger.Info("reconnecting to MQTT broker", "broker", c.cfg.Broker.URL)
	}

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// Abort the attempt so the next call can start a fresh one.
		c.client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrReconnectFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrReconnectFailed, err)
	}
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: connection not open", ErrReconnectFailed)
	}

	c.setConnected(true)
	return nil
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status (different from the LWT status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Returns:
//   - error: Always nil; a connection that is already closed is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(c.statusTopic, 1, true, payload)
		token.WaitTimeout(c.publishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected reports whether the connection to the broker is open.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// StatusTopic returns the topic carrying the relay's online/offline status.
func (c *Client) StatusTopic() string {
	return c.statusTopic
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events.
// If not set, events are not logged.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
