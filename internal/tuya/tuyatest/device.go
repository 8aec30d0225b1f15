// Package tuyatest provides a fake Tuya device that decodes CONTROL frames.
package tuyatest

import (
	"encoding/json"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tuya-ir-bridge/internal/tuya"
)

// Message is one decoded CONTROL body.
type Message struct {
	Sequence uint32
	DevID    string         `json:"devId"`
	UID      string         `json:"uid"`
	T        string         `json:"t"`
	DPS      map[string]any `json:"dps"`
}

// Device listens on a loopback port and records every frame it receives.
type Device struct {
	key      string
	version  string
	listener net.Listener

	mu       sync.Mutex
	messages []Message
	errs     []error
	conns    []net.Conn
	notify   chan struct{}

	wg   sync.WaitGroup
	once sync.Once
}

// Start launches a fake device for the given local key and version.
func Start(t *testing.T, key, version string) *Device {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	d := &Device{
		key:      key,
		version:  version,
		listener: listener,
		notify:   make(chan struct{}, 1),
	}

	d.wg.Add(1)
	go d.acceptLoop()

	t.Cleanup(d.Close)
	return d
}

// Host returns the listen IP.
func (d *Device) Host() string {
	return d.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listen port.
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Address returns host:port.
func (d *Device) Address() string {
	return net.JoinHostPort(d.Host(), strconv.Itoa(d.Port()))
}

func (d *Device) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}

		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()

		d.wg.Add(1)
		go d.handle(conn)
	}
}

func (d *Device) handle(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	header := make([]byte, 16)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		total, err := tuya.FrameLength(header)
		if err != nil {
			d.recordErr(err)
			return
		}

		buf := make([]byte, total)
		copy(buf, header)
		if _, err := io.ReadFull(conn, buf[16:]); err != nil {
			d.recordErr(err)
			return
		}

		frame, _, err := tuya.DecodeFrame(buf)
		if err != nil {
			d.recordErr(err)
			continue
		}

		body, err := tuya.OpenPayload(d.version, d.key, frame.Payload)
		if err != nil {
			d.recordErr(err)
			continue
		}

		msg := Message{Sequence: frame.Sequence}
		if err := json.Unmarshal(body, &msg); err != nil {
			d.recordErr(err)
			continue
		}

		d.mu.Lock()
		d.messages = append(d.messages, msg)
		d.mu.Unlock()

		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
}

func (d *Device) recordErr(err error) {
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
}

// Messages returns a copy of all decoded messages.
func (d *Device) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.messages))
	copy(out, d.messages)
	return out
}

// Errors returns decode errors seen so far.
func (d *Device) Errors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]error, len(d.errs))
	copy(out, d.errs)
	return out
}

// WaitForMessages blocks until at least n messages arrived or timeout expires.
func (d *Device) WaitForMessages(n int, timeout time.Duration) []Message {
	deadline := time.After(timeout)
	for {
		if msgs := d.Messages(); len(msgs) >= n {
			return msgs
		}
		select {
		case <-d.notify:
		case <-deadline:
			return d.Messages()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Close stops listening and drops open connections.
func (d *Device) Close() {
	d.once.Do(func() {
		d.listener.Close()

		d.mu.Lock()
		for _, c := range d.conns {
			c.Close()
		}
		d.mu.Unlock()

		d.wg.Wait()
	})
}
