package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client is the InfluxDB sink for relay publish and session points.
//
// Points are queued on the library's batching WriteAPI and sent from its
// own goroutine, so a slow InfluxDB never holds up a relay. Failed
// batches are reported through the SetOnError callback and dropped.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	url      string

	closed atomic.Bool

	errMu   sync.RWMutex
	onError func(err error)
}

// Connect pings InfluxDB at cfg.URL and returns a client writing to
// cfg.Org/cfg.Bucket.
//
// Returns ErrDisabled when cfg.Enabled is false and a wrapped
// ErrUnreachable when the ping fails within ctx.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))
	c := &Client{client: client, url: cfg.URL}

	if err := c.ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	c.writeAPI = client.WriteAPI(cfg.Org, cfg.Bucket)
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// clientOptions maps the relay's batching settings onto the library's.
// Points carry millisecond timestamps, matching elapsed_ms resolution.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Millisecond).
		SetApplicationName("gray-logic-relay").
		SetLogLevel(0)
}

func (c *Client) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.url, err)
	}
	if !ok {
		return fmt.Errorf("ping %s: server not ready", c.url)
	}
	return nil
}

// forwardErrors drains the WriteAPI error channel until the client closes.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		callback := c.onError
		c.errMu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrBatchDropped, err))
		}
	}
}

// SetOnError sets the callback for batches InfluxDB did not accept.
func (c *Client) SetOnError(callback func(err error)) {
	c.errMu.Lock()
	c.onError = callback
	c.errMu.Unlock()
}

// IsConnected is true between a successful Connect and Close.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && !c.closed.Load()
}

// HealthCheck pings InfluxDB.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.ping(ctx)
}

// Flush sends queued points and waits for the write to finish.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes queued points and releases the client. Later writes are
// dropped. Safe on a nil or already closed client.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
