package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
// Override the URL and token with RELAY_TEST_INFLUXDB_URL and RELAY_TEST_INFLUXDB_TOKEN.
func testConfig() config.InfluxDBConfig {
	cfg := config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "relay-dev-token",
		Org:           "relay",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
	if v := os.Getenv("RELAY_TEST_INFLUXDB_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("RELAY_TEST_INFLUXDB_TOKEN"); v != "" {
		cfg.Token = v
	}
	return cfg
}

// connectOrSkip connects to the test InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := influxdb.Connect(ctx, testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu         sync.Mutex
	lines      []string
	query      string
	writeCode  int
	pingFailed bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeCode: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/ping"):
			if f.pingFailed {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
			body, _ := io.ReadAll(r.Body)
			f.query = r.URL.RawQuery
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			if f.writeCode != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.writeCode)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) fakeConfig() config.InfluxDBConfig {
	cfg := testConfig()
	cfg.URL = f.URL
	return cfg
}

// =============================================================================
// Offline Tests
// =============================================================================

func TestConnect_FakeServerWrites(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), f.fakeConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePointWithTime("relay_publish",
		map[string]string{"peer": "10.0.0.7", "topic": "relay/10.0.0.7"},
		map[string]interface{}{"bytes": int64(3)},
		time.UnixMilli(1772352000123),
	)
	client.Flush()

	// A point still queued when Flush ran goes out on the 1s flush tick.
	deadline := time.Now().Add(5 * time.Second)
	for len(f.Lines()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	lines := f.Lines()
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1: %v", len(lines), lines)
	}
	want := "relay_publish,peer=10.0.0.7,topic=relay/10.0.0.7 bytes=3i 1772352000123"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}

	f.mu.Lock()
	query := f.query
	f.mu.Unlock()
	for _, part := range []string{"org=relay", "bucket=telemetry", "precision=ms"} {
		if !strings.Contains(query, part) {
			t.Errorf("write query %q missing %q", query, part)
		}
	}
}

func TestConnect_PingRefused(t *testing.T) {
	f := newFakeInflux(t)
	f.mu.Lock()
	f.pingFailed = true
	f.mu.Unlock()

	_, err := influxdb.Connect(context.Background(), f.fakeConfig())
	if !errors.Is(err, influxdb.ErrUnreachable) {
		t.Errorf("Connect() error = %v, want ErrUnreachable", err)
	}
}

func TestOnError_BatchDropped(t *testing.T) {
	f := newFakeInflux(t)
	f.mu.Lock()
	f.writeCode = http.StatusBadRequest
	f.mu.Unlock()

	client, err := influxdb.Connect(context.Background(), f.fakeConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WritePoint("relay_session", map[string]string{"peer": "10.0.0.7"}, map[string]interface{}{"messages": int64(1)})
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrBatchDropped) {
			t.Errorf("onError got %v, want ErrBatchDropped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onError not called for a rejected batch")
	}
}

func TestClose_Idempotent(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), f.fakeConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrNotConnected", err)
	}

	client.WritePoint("relay_publish", nil, map[string]interface{}{"bytes": int64(1)})
	client.Flush()
	if n := len(f.Lines()); n != 0 {
		t.Errorf("wrote %d lines after Close(), want 0", n)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrUnreachable) {
		t.Errorf("Connect() error = %v, want ErrUnreachable", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	client := connectOrSkip(t)

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	client.WritePoint("relay_publish",
		map[string]string{"peer": "127.0.0.1", "topic": "relay/127.0.0.1"},
		map[string]interface{}{"bytes": int64(3), "elapsed_ms": 0.5},
	)
	client.WritePointWithTime("relay_session",
		map[string]string{"peer": "127.0.0.1", "outcome": "closed"},
		map[string]interface{}{"messages": int64(1), "bytes": int64(3), "duration_ms": 1.0},
		time.Now().Add(-time.Second),
	)
	client.Flush()

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after close are silently dropped.
	client.WritePoint("relay_publish", nil, map[string]interface{}{"bytes": int64(1)})
	client.Flush()
}
