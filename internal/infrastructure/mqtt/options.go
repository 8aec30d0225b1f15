package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the broker keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectDelay caps paho's reconnect backoff.
	defaultMaxReconnectDelay = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes one broker connection.
type Options struct {
	// BrokerURL is the full broker URL, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID is the MQTT client identity. Sessions use the device id.
	ClientID string

	// Username and Password are sent only when Username is non-empty.
	Username string
	Password string

	KeepAlive         time.Duration
	ConnectTimeout    time.Duration
	MaxReconnectDelay time.Duration

	// AutoReconnect lets paho re-establish a lost connection on its own.
	AutoReconnect bool
}

// OptionsFromConfig builds connection options for one session.
func OptionsFromConfig(cfg *config.Config, clientID string) Options {
	return Options{
		BrokerURL:         cfg.BrokerURL(),
		ClientID:          clientID,
		Username:          cfg.MQTTUser,
		Password:          cfg.MQTTPass,
		KeepAlive:         cfg.GetKeepAlive(),
		ConnectTimeout:    cfg.GetConnectTimeout(),
		MaxReconnectDelay: cfg.GetMaxReconnectDelay(),
		AutoReconnect:     cfg.MQTT.AutoReconnect,
	}
}

func (o Options) withDefaults() Options {
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	return o
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL and client identity
//   - Authentication credentials (if provided)
//   - Clean session mode
//   - Client-side auto-reconnect, but no retry of the initial connect
//   - TLS for ssl:// brokers
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(o.BrokerURL)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)

	// Per-session message order is part of the dispatch contract.
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(o.MaxReconnectDelay)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)

	if len(o.BrokerURL) > 6 && o.BrokerURL[:6] == "ssl://" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}
