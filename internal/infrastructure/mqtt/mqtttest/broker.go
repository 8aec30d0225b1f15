// Package mqtttest runs an in-process MQTT broker for tests.
package mqtttest

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// Broker is an embedded broker bound to a loopback port.
type Broker struct {
	server *mochi.Server
	addr   string
	once   sync.Once
}

// Start launches a broker on a free loopback port and registers its
// shutdown with t.Cleanup.
func Start(t *testing.T) *Broker {
	t.Helper()

	addr := freeAddr(t)

	server := mochi.New(&mochi.Options{
		InlineClient: true,
	})
	server.Log = slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Address: addr,
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener: %v", err)
	}

	if err := server.Serve(); err != nil {
		t.Fatalf("starting broker: %v", err)
	}

	b := &Broker{server: server, addr: addr}
	t.Cleanup(b.Close)
	return b
}

// URL returns the paho broker URL.
func (b *Broker) URL() string {
	return "tcp://" + b.addr
}

// Host returns the listen host.
func (b *Broker) Host() string {
	host, _, _ := net.SplitHostPort(b.addr)
	return host
}

// Port returns the listen port.
func (b *Broker) Port() int {
	_, port, _ := net.SplitHostPort(b.addr)
	p, _ := strconv.Atoi(port)
	return p
}

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 0)
}

// Subscribe registers an inline subscription that forwards payloads to fn.
func (b *Broker) Subscribe(filter string, id int, fn func(topic string, payload []byte)) error {
	return b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		fn(pk.TopicName, pk.Payload)
	})
}

// HasSubscriber reports whether any client holds a subscription matching topic.
func (b *Broker) HasSubscriber(topic string) bool {
	subs := b.server.Topics.Subscribers(topic)
	return len(subs.Subscriptions) > 0
}

// Close stops the broker. Safe to call multiple times.
func (b *Broker) Close() {
	b.once.Do(func() { _ = b.server.Close() })
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}
