package tsdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Default timeouts and batch settings for TSDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultBatchSize      = 1000
	defaultFlushInterval  = time.Second
)

// Client writes relay telemetry to VictoriaMetrics using InfluxDB line protocol.
//
// Lines are batched and flushed when the batch reaches the configured size
// or when the flush ticker fires. A flush is a single POST to /write.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	url        string
	httpClient *http.Client

	connected bool
	mu        sync.RWMutex

	batch     []string
	batchMu   sync.Mutex
	batchSize int

	flushTick *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onError func(err error)
}

// Connect verifies VictoriaMetrics answers /health and starts the flush loop.
//
// Parameters:
//   - ctx: Context bounding the health check
//   - cfg: TSDB configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled when disabled, or wrapped ErrUnreachable
func Connect(ctx context.Context, cfg config.TSDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	c := newClient(strings.TrimRight(cfg.URL, "/"), &http.Client{Timeout: defaultWriteTimeout}, batchSize)

	healthCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := c.HealthCheck(healthCtx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	c.flushTick = time.NewTicker(flushInterval)
	c.wg.Add(1)
	go c.flushLoop()

	return c, nil
}

// newClient builds a connected client without a flush loop.
func newClient(url string, httpClient *http.Client, batchSize int) *Client {
	return &Client{
		url:        url,
		httpClient: httpClient,
		batch:      make([]string, 0, batchSize),
		batchSize:  batchSize,
		done:       make(chan struct{}),
		connected:  true,
	}
}

func (c *Client) flushLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.flushTick.C:
			c.Flush()
		case <-c.done:
			return
		}
	}
}

// Close stops the flush loop and writes whatever is still batched.
// Flush errors are delivered to the SetOnError callback.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		if c.flushTick != nil {
			c.flushTick.Stop()
		}
		close(c.done)
		c.wg.Wait()

		c.Flush()

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})
	return nil
}

// HealthCheck performs GET /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tsdb health check: status %d", resp.StatusCode)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback for failed batch flushes.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// addLine appends a line to the batch, flushing when it is full.
// Lines are dropped once the client is closed.
func (c *Client) addLine(line string) {
	if !c.IsConnected() {
		return
	}

	c.batchMu.Lock()
	c.batch = append(c.batch, line)
	full := len(c.batch) >= c.batchSize
	c.batchMu.Unlock()

	if full {
		c.Flush()
	}
}

// Flush sends all pending lines. Only one batch is swapped out per call.
func (c *Client) Flush() {
	c.batchMu.Lock()
	if len(c.batch) == 0 {
		c.batchMu.Unlock()
		return
	}
	lines := c.batch
	c.batch = make([]string, 0, c.batchSize)
	c.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	body := bytes.NewBufferString(strings.Join(lines, "\n"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/write", body)
	if err != nil {
		c.reportError(fmt.Errorf("%w: %w", ErrBatchRejected, err))
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.reportError(fmt.Errorf("%w: %d lines: %w", ErrBatchRejected, len(lines), err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		c.reportError(fmt.Errorf("%w: HTTP %d", ErrBatchRejected, resp.StatusCode))
	}
}

func (c *Client) reportError(err error) {
	c.mu.RLock()
	callback := c.onError
	c.mu.RUnlock()

	if callback != nil {
		callback(err)
	}
}
