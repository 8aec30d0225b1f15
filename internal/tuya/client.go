package tuya

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Default connection settings.
const (
	// DefaultPort is the Tuya local protocol TCP port.
	DefaultPort = 6668

	// defaultConnectTimeout is the maximum time to wait for a TCP connect.
	defaultConnectTimeout = 5 * time.Second

	// defaultSendTimeout is the write deadline for one frame.
	defaultSendTimeout = 5 * time.Second
)

// Config describes one device connection.
type Config struct {
	// ID is the device id, sent as devId and uid in every payload.
	ID string

	// Address is the device IP or host. A host:port form overrides Port.
	Address string

	// Port defaults to DefaultPort.
	Port int

	// Key is the 16 byte local key.
	Key string

	// Version is "3.1", "3.2" or "3.3".
	Version string

	ConnectTimeout time.Duration
	SendTimeout    time.Duration

	// Persistent keeps the socket open between frames.
	Persistent bool

	// Debug logs every frame as hex at debug level.
	Debug bool
}

// Stats holds operational statistics.
type Stats struct {
	FramesSent   uint64
	ErrorsTotal  uint64
	DialsTotal   uint64
	LastActivity time.Time
	Connected    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client sends frames to one device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Sends are serialised so frames never interleave on the socket.
type Client struct {
	cfg     Config
	key     []byte
	version string
	address string

	conn   net.Conn
	connMu sync.Mutex
	closed bool

	seq atomic.Uint32

	logger   Logger
	loggerMu sync.RWMutex

	framesSent   atomic.Uint64
	errorsTotal  atomic.Uint64
	dialsTotal   atomic.Uint64
	lastActivity atomic.Int64

	now func() time.Time
}

// New validates cfg and returns a client without opening a connection.
//
// Returns:
//   - error: wrapping ErrUnsupportedVersion or ErrInvalidKey
func New(cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	version, err := checkVersion(cfg.Version)
	if err != nil {
		return nil, err
	}
	key, err := checkKey(cfg.Key)
	if err != nil {
		return nil, err
	}

	address := cfg.Address
	if _, _, splitErr := net.SplitHostPort(address); splitErr != nil {
		address = net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	}

	return &Client{
		cfg:     cfg,
		key:     key,
		version: version,
		address: address,
		now:     time.Now,
	}, nil
}

// Dial validates cfg and verifies the device accepts a TCP connection.
//
// With cfg.Persistent the connection is kept for the first Send; otherwise
// it is closed again and each Send opens its own.
//
// Returns:
//   - *Client: ready to send
//   - error: wrapping ErrConnectionFailed, ErrUnsupportedVersion or ErrInvalidKey
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if cfg.Persistent {
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
	} else {
		conn.Close()
	}

	return c, nil
}

// dial opens a TCP connection bounded by ConnectTimeout.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.address, err)
	}
	c.dialsTotal.Add(1)
	return conn, nil
}

type controlBody struct {
	DevID string         `json:"devId"`
	UID   string         `json:"uid"`
	T     string         `json:"t"`
	DPS   map[string]any `json:"dps"`
}

// GeneratePayload builds a complete encrypted frame carrying dps.
//
// Only CommandControl is supported.
//
// Returns:
//   - []byte: the frame, ready for Send
//   - error: wrapping ErrUnsupportedCommand, or a JSON encoding error
func (c *Client) GeneratePayload(cmd Command, dps map[string]any) ([]byte, error) {
	if cmd != CommandControl {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd)
	}

	body, err := json.Marshal(controlBody{
		DevID: c.cfg.ID,
		UID:   c.cfg.ID,
		T:     strconv.FormatInt(c.now().Unix(), 10),
		DPS:   dps,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding dps: %w", err)
	}

	payload, err := sealPayload(c.version, c.key, body)
	if err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}

	return EncodeFrame(Frame{
		Sequence: c.seq.Add(1),
		Command:  cmd,
		Payload:  payload,
	}), nil
}

// Send writes one frame to the device without waiting for a reply.
//
// A failed write closes the socket; the next Send dials again.
//
// Returns:
//   - error: wrapping ErrSendFailed or ErrNotConnected
func (c *Client) Send(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.errorsTotal.Add(1)
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		c.conn = conn
	}

	deadline := time.Now().Add(c.cfg.SendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.dropConnLocked()
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	if c.cfg.Debug {
		c.logDebug("tuya frame tx", "device_id", c.cfg.ID, "address", c.address, "frame", hex.EncodeToString(frame))
	}

	if _, err := c.conn.Write(frame); err != nil {
		c.dropConnLocked()
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.framesSent.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	if !c.cfg.Persistent {
		c.dropConnLocked()
	}

	return nil
}

// dropConnLocked closes the socket. connMu must be held.
func (c *Client) dropConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the connection. Later sends fail with ErrNotConnected.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.closed = true
	c.dropConnLocked()
	return nil
}

// Address returns the dialled host:port.
func (c *Client) Address() string {
	return c.address
}

// Version returns the canonical protocol version in use.
func (c *Client) Version() string {
	return c.version
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	c.connMu.Lock()
	connected := c.conn != nil
	c.connMu.Unlock()

	var last time.Time
	if ts := c.lastActivity.Load(); ts != 0 {
		last = time.Unix(ts, 0)
	}

	return Stats{
		FramesSent:   c.framesSent.Load(),
		ErrorsTotal:  c.errorsTotal.Load(),
		DialsTotal:   c.dialsTotal.Load(),
		LastActivity: last,
		Connected:    connected,
	}
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
