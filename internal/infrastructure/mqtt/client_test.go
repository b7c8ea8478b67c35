package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// testBrokerURL returns the broker used by connection tests.
// Override with RELAY_TEST_BROKER_URL.
func testBrokerURL() string {
	if v := os.Getenv("RELAY_TEST_BROKER_URL"); v != "" {
		return v
	}
	return "tcp://127.0.0.1:1883"
}

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			URL:      testBrokerURL(),
			ClientID: "gray-logic-relay-test",
		},
		QoS:            1,
		TopicPrefix:    "relaytest",
		PublishTimeout: 5,
	}
}

// requireBroker skips the test when no broker is listening.
func requireBroker(t *testing.T) {
	t.Helper()
	host := strings.TrimPrefix(testBrokerURL(), "tcp://")
	conn, err := net.DialTimeout("tcp", host, 500*time.Millisecond)
	if err != nil {
		t.Skipf("MQTT broker not available at %s: %v", host, err)
	}
	conn.Close()
}

// freeAddr returns a loopback address with nothing listening on it.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// startBroker runs an in-process MQTT broker on addr until stopped.
func startBroker(t *testing.T, addr string) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("broker hook: %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})); err != nil {
		t.Fatalf("broker listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("broker serve: %v", err)
	}
	return server
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

// =============================================================================
// Option and Topic Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "relay", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != cfg.Broker.URL {
		t.Errorf("Servers = %v, want [%s]", opts.Servers, cfg.Broker.URL)
	}
	if opts.ClientID != "gray-logic-relay-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "relay" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want relay/secret", opts.Username, opts.Password)
	}
	if opts.AutoReconnect || opts.ConnectRetry {
		t.Errorf("AutoReconnect/ConnectRetry = %v/%v, want false/false", opts.AutoReconnect, opts.ConnectRetry)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("plain tcp:// broker should not configure TLS")
	}
}

func TestBuildClientOptions_NoAuth(t *testing.T) {
	opts := buildClientOptions(testConfig())
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
}

func TestIsTLSBroker(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"tcp://localhost:1883", false},
		{"ssl://broker:8883", true},
		{"tls://broker:8883", true},
		{"mqtts://broker:8883", true},
		{"ws://broker:9001", false},
		{"::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isTLSBroker(tt.url); got != tt.want {
				t.Errorf("isTLSBroker(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "relay/_relay/status", "relay-1")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "relay/_relay/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestTopicsStatus(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"relay", "relay/_relay/status"},
		{"factory/line1", "factory/line1/_relay/status"},
		{"relay/", "relay/_relay/status"},
	}

	for _, tt := range tests {
		if got := (Topics{Prefix: tt.prefix}).Status(); got != tt.want {
			t.Errorf("Topics{%q}.Status() = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestValidPublishTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  bool
	}{
		{"relay/10.0.0.1", true},
		{"relay/::1", true},
		{"", false},
		{"relay/+", false},
		{"relay/#", false},
	}

	for _, tt := range tests {
		if got := validPublishTopic(tt.topic); got != tt.want {
			t.Errorf("validPublishTopic(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

// =============================================================================
// Offline Client Tests
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := newClient(testConfig())
	if client.IsConnected() {
		t.Error("IsConnected() = true before Connect, want false")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}

func TestReconnectNil(t *testing.T) {
	client := &Client{}
	if err := client.Reconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Reconnect() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", payload: []byte("x"), qos: 0, wantErr: ErrInvalidTopic},
		{name: "wildcard topic", topic: "relay/#", payload: []byte("x"), qos: 0, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "relay/a", payload: []byte("x"), qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "relay/a", payload: make([]byte, maxPayloadSize+1), qos: 0, wantErr: ErrPublishFailed},
		{name: "not connected", topic: "relay/a", payload: []byte("x"), qos: 0, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := newClient(testConfig())
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.URL = "tcp://" + freeAddr(t)

	start := time.Now()
	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if elapsed := time.Since(start); elapsed >= defaultConnectTimeout {
		t.Errorf("Connect() took %v, want a refused dial to fail fast", elapsed)
	}
}

func TestNewClient_PublishTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PublishTimeout = 2
	if got := newClient(cfg).publishTimeout; got != 2*time.Second {
		t.Errorf("publishTimeout = %v, want 2s", got)
	}

	cfg.PublishTimeout = 0
	if got := newClient(cfg).publishTimeout; got != defaultPublishTimeout {
		t.Errorf("publishTimeout = %v, want default %v", got, defaultPublishTimeout)
	}
}

// =============================================================================
// In-Process Broker Tests
// =============================================================================

func TestReconnect_AfterBrokerRestart(t *testing.T) {
	addr := freeAddr(t)
	broker := startBroker(t, addr)

	cfg := testConfig()
	cfg.Broker.URL = "tcp://" + addr
	client, err := Connect(cfg)
	if err != nil {
		broker.Close()
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	broker.Close()
	// The loss handler runs once paho has finished tearing the session down.
	lost := func() bool {
		client.connMu.RLock()
		defer client.connMu.RUnlock()
		return !client.connected
	}
	if !waitFor(t, 5*time.Second, lost) {
		t.Fatal("connection loss not observed after broker stopped")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after broker stopped")
	}

	// Broker down: one real attempt that fails, not an instant refusal
	// from a background retry loop.
	if err := client.Reconnect(); !errors.Is(err, ErrReconnectFailed) {
		t.Errorf("Reconnect() with broker down error = %v, want ErrReconnectFailed", err)
	}

	broker = startBroker(t, addr)
	defer broker.Close()

	if err := client.Reconnect(); err != nil {
		t.Fatalf("Reconnect() after broker restart error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Reconnect(), want true")
	}
	if err := client.Publish("relaytest/127.0.0.1", []byte{0x01}, 1, false); err != nil {
		t.Errorf("Publish() after Reconnect() error = %v", err)
	}
}

func TestReconnect_Concurrent(t *testing.T) {
	addr := freeAddr(t)
	broker := startBroker(t, addr)
	defer broker.Close()

	cfg := testConfig()
	cfg.Broker.URL = "tcp://" + addr
	client := newClient(cfg)
	defer client.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Reconnect()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Reconnect() error = %v", err)
		}
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after concurrent Reconnect(), want true")
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnect(t *testing.T) {
	requireBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	requireBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestReconnectAfterClose(t *testing.T) {
	requireBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.Close()
	if err := client.Reconnect(); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Reconnect(), want true")
	}

	// Already connected: no-op.
	if err := client.Reconnect(); err != nil {
		t.Errorf("second Reconnect() error = %v", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	subOpts := pahomqtt.NewClientOptions().AddBroker(cfg.Broker.URL).SetClientID("gray-logic-relay-test-sub")
	sub := pahomqtt.NewClient(subOpts)
	if tok := sub.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", tok.Error())
	}
	defer sub.Disconnect(100)

	topic := "relaytest/127.0.0.1"
	var (
		mu       sync.Mutex
		received []byte
	)
	done := make(chan struct{})
	tok := sub.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		mu.Lock()
		received = append([]byte(nil), msg.Payload()...)
		mu.Unlock()
		close(done)
	})
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe failed: %v", tok.Error())
	}

	payload := []byte{0x00, 0xff, 'h', 'i'}
	if err := client.Publish(topic, payload, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(payload) {
		t.Errorf("received % x, want % x", received, payload)
	}
}

func TestOnConnectCallback(t *testing.T) {
	requireBroker(t)

	client := newClient(testConfig())
	called := make(chan struct{}, 1)
	client.SetOnConnect(func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	if err := client.Reconnect(); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	defer client.Close()

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Error("OnConnect callback was not invoked")
	}
}
