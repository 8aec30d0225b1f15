package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps paho.mqtt.golang for a single device session.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Hooks run on paho's goroutines, never while a Client lock is held.
type Client struct {
	client pahomqtt.Client
	opts   Options
	hooks  Hooks

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// done closes when the connection has ended for good.
	done     chan struct{}
	doneOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Hooks are optional lifecycle callbacks. They must be supplied before the
// connection is opened so the very first on-connect event is not missed.
type Hooks struct {
	// OnConnect is invoked after every successful (re)connection.
	OnConnect func(c *Client)

	// OnConnectionLost is invoked when an established connection drops.
	OnConnectionLost func(c *Client, err error)
}

// MessageHandler is the callback signature for received messages.
//
// paho delivers messages for one client in arrival order on a single
// goroutine, so a handler sees its session's messages one at a time.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect opens a connection to the broker and blocks until the broker
// accepts it or the connect timeout expires.
//
// The initial attempt is not retried: a broker that cannot be reached at
// startup yields ErrConnectionFailed.
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: wrapping ErrConnectionFailed or ErrInvalidClientID
func Connect(opts Options, hooks Hooks) (*Client, error) {
	if opts.ClientID == "" {
		return nil, ErrInvalidClientID
	}
	opts = opts.withDefaults()

	c := &Client{
		opts:  opts,
		hooks: hooks,
		done:  make(chan struct{}),
	}

	pahoOpts := buildClientOptions(opts)
	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(pahoOpts)
	token := c.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setConnected(true)

	return c, nil
}

// handleConnect is called by paho when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)

	// A clean session starts with no subscriptions; the hook restores them.
	if c.hooks.OnConnect != nil {
		c.hooks.OnConnect(c)
	}
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)

	if c.hooks.OnConnectionLost != nil {
		c.hooks.OnConnectionLost(c, err)
	}

	// Without auto-reconnect paho gives up here, so the connection is over.
	if !c.opts.AutoReconnect {
		c.markDone()
	}
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done returns a channel that is closed when the connection has terminated
// and will not be re-established by the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from the broker and closes Done.
// Safe to call multiple times.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	c.markDone()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets a logger for handler errors and panics.
// If not set, handler errors are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error",
				"topic", topic,
				"error", err,
			)
		}
	}
}
