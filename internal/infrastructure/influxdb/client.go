package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Batching used when the config leaves it unset.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client records dispatch points through a batched, non-blocking write API.
//
// Thread Safety: All methods are safe for concurrent use. A nil *Client
// accepts every call and does nothing.
type Client struct {
	influx   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	closed atomic.Bool

	// queued counts points handed to the write API.
	queued atomic.Uint64
	// failed counts batches the server rejected.
	failed atomic.Uint64

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and prepares the write API for the configured
// org and bucket.
//
// Returns:
//   - error: ErrDisabled when telemetry is off, or wrapping ErrConnectionFailed
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := influx.Ping(pingCtx)
	switch {
	case err != nil:
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		influx.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		influx:   influx,
		writeAPI: influx.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}
	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

// clientOptions maps the batch settings, falling back when unset.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}

	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush / time.Millisecond))
}

// drainErrors forwards asynchronous write failures to the error callback.
// It returns when the write API closes the channel.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers the callback for batch write failures.
func (c *Client) SetOnError(callback func(err error)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.influx != nil && !c.closed.Load()
}

// Flush blocks until buffered points have been sent. No-op once closed.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe to call more
// than once.
func (c *Client) Close() error {
	if c == nil || c.influx == nil || c.closed.Swap(true) {
		return nil
	}

	c.writeAPI.Flush()
	c.influx.Close()
	return nil
}

// Queued returns the number of points accepted for writing.
func (c *Client) Queued() uint64 {
	if c == nil {
		return 0
	}
	return c.queued.Load()
}

// Failed returns the number of rejected write batches.
func (c *Client) Failed() uint64 {
	if c == nil {
		return 0
	}
	return c.failed.Load()
}
