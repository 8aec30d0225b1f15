package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tuya-ir-bridge/internal/command"
	"github.com/nerrad567/tuya-ir-bridge/internal/device"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-ir-bridge/internal/tuya"
)

// MockBroker is a test implementation of BrokerClient.
type MockBroker struct {
	mu            sync.Mutex
	handlers      map[string]mqtt.MessageHandler
	qos           map[string]byte
	subscribeErr  error
	subscribeCall int
	hooks         BrokerHooks

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		handlers: make(map[string]mqtt.MessageHandler),
		qos:      make(map[string]byte),
		done:     make(chan struct{}),
	}
}

func (m *MockBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribeCall++
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	m.qos[topic] = qos
	return nil
}

func (m *MockBroker) Done() <-chan struct{} { return m.done }

func (m *MockBroker) Close() error {
	m.closed.Store(true)
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// Drop simulates a permanent loss of the broker connection.
func (m *MockBroker) Drop() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Lose simulates a dropped connection that the client will re-establish.
func (m *MockBroker) Lose(err error) {
	m.mu.Lock()
	m.handlers = make(map[string]mqtt.MessageHandler)
	onLost := m.hooks.OnConnectionLost
	m.mu.Unlock()

	if onLost != nil {
		onLost(err)
	}
}

// Reconnect simulates the client re-establishing the connection.
func (m *MockBroker) Reconnect() {
	m.mu.Lock()
	onConnect := m.hooks.OnConnect
	m.mu.Unlock()

	if onConnect != nil {
		onConnect(m)
	}
}

// SimulateMessage delivers payload to the handler subscribed on topic.
// Returns false if nothing is subscribed there.
func (m *MockBroker) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()

	if !ok {
		return false
	}
	_ = handler(topic, payload)
	return true
}

func (m *MockBroker) Topics() map[string]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]byte, len(m.qos))
	for k, v := range m.qos {
		out[k] = v
	}
	return out
}

func (m *MockBroker) SubscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCall
}

// MockBrokerDialer hands out MockBrokers and records what it was asked for.
type MockBrokerDialer struct {
	mu      sync.Mutex
	err     error
	prepare func(*MockBroker)
	opts    []mqtt.Options
	brokers chan *MockBroker
}

func NewMockBrokerDialer() *MockBrokerDialer {
	return &MockBrokerDialer{brokers: make(chan *MockBroker, 16)}
}

func (d *MockBrokerDialer) Dial(opts mqtt.Options, hooks BrokerHooks) (BrokerClient, error) {
	d.mu.Lock()
	d.opts = append(d.opts, opts)
	err := d.err
	prepare := d.prepare
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}

	b := NewMockBroker()
	b.hooks = hooks
	if prepare != nil {
		prepare(b)
	}
	hooks.OnConnect(b)
	d.brokers <- b
	return b, nil
}

// Next waits for the next broker handed out.
func (d *MockBrokerDialer) Next(t *testing.T) *MockBroker {
	t.Helper()
	select {
	case b := <-d.brokers:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("broker was not dialled")
		return nil
	}
}

func (d *MockBrokerDialer) Calls() []mqtt.Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mqtt.Options(nil), d.opts...)
}

// SentCommand is one frame the MockDevice was asked to send.
type SentCommand struct {
	Command tuya.Command
	DPS     map[string]any
}

// MockDevice is a test implementation of DeviceConn.
type MockDevice struct {
	mu       sync.Mutex
	sent     []SentCommand
	pending  map[string]SentCommand
	sendErr  error
	genErr   error
	delay    time.Duration
	closed   bool
	inFlight atomic.Int32
	overlap  atomic.Bool
	seq      int
}

func NewMockDevice() *MockDevice {
	return &MockDevice{pending: make(map[string]SentCommand)}
}

func (m *MockDevice) GeneratePayload(cmd tuya.Command, dps map[string]any) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.genErr != nil {
		return nil, m.genErr
	}
	m.seq++
	frame := fmt.Sprintf("frame-%d", m.seq)
	m.pending[frame] = SentCommand{Command: cmd, DPS: dps}
	return []byte(frame), nil
}

func (m *MockDevice) Send(_ context.Context, frame []byte) error {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inFlight.Add(-1)

	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	cmd, ok := m.pending[string(frame)]
	if !ok {
		return errors.New("unknown frame")
	}
	delete(m.pending, string(frame))
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockDevice) Address() string { return "192.168.1.40:6668" }
func (m *MockDevice) Version() string { return "3.3" }

func (m *MockDevice) Stats() tuya.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tuya.Stats{FramesSent: uint64(len(m.sent)), DialsTotal: 1}
}

func (m *MockDevice) SetSendErr(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *MockDevice) Sent() []SentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentCommand(nil), m.sent...)
}

func (m *MockDevice) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockDeviceDialer returns a fixed device per id, or an error.
type MockDeviceDialer struct {
	mu      sync.Mutex
	devices map[string]*MockDevice
	errs    map[string]error
	cfgs    []tuya.Config
}

func NewMockDeviceDialer() *MockDeviceDialer {
	return &MockDeviceDialer{
		devices: make(map[string]*MockDevice),
		errs:    make(map[string]error),
	}
}

func (d *MockDeviceDialer) Device(id string) *MockDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[id]
	if !ok {
		dev = NewMockDevice()
		d.devices[id] = dev
	}
	return dev
}

func (d *MockDeviceDialer) Fail(id string, err error) {
	d.mu.Lock()
	d.errs[id] = err
	d.mu.Unlock()
}

func (d *MockDeviceDialer) Dial(_ context.Context, cfg tuya.Config) (DeviceConn, error) {
	d.mu.Lock()
	d.cfgs = append(d.cfgs, cfg)
	err := d.errs[cfg.ID]
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return d.Device(cfg.ID), nil
}

func (d *MockDeviceDialer) Calls() []tuya.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tuya.Config(nil), d.cfgs...)
}

// MockRecorder is a test implementation of DispatchRecorder.
type MockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *MockRecorder) RecordDispatch(deviceID, cmd, outcome string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, deviceID+"/"+cmd+"/"+outcome)
	r.mu.Unlock()
}

func (r *MockRecorder) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// MockLogger records messages by level, with their key/value fields.
type MockLogger struct {
	mu      sync.Mutex
	entries []string
	fields  []map[string]any
}

func (l *MockLogger) add(level, msg string, args []any) {
	f := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			f[k] = args[i+1]
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, level+": "+msg)
	l.fields = append(l.fields, f)
	l.mu.Unlock()
}

func (l *MockLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *MockLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *MockLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *MockLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

// Fields returns the fields of the last entry matching entry, or nil.
func (l *MockLogger) Fields(entry string) map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i] == entry {
			return l.fields[i]
		}
	}
	return nil
}

func (l *MockLogger) Count(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e == entry {
			n++
		}
	}
	return n
}

func (l *MockLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if len(e) > 6 && e[:6] == "ERROR:" {
			n++
		}
	}
	return n
}

// =============================================================================
// Fixtures
// =============================================================================

func testConfig() *config.Config {
	return &config.Config{
		Host:  "broker.local",
		Port:  1883,
		Topic: "home/",
		MQTT: config.MQTTConfig{
			KeepAlive:      60,
			ConnectTimeout: 5,
		},
		Tuya: config.TuyaConfig{
			Port:           6668,
			ConnectTimeout: 5,
			SendTimeout:    5,
		},
	}
}

func testTable() *command.Table {
	return command.NewTable(map[string]string{
		"power_on":  "0x0123",
		"power_off": "0x0124",
	})
}

func testDescriptor(id string) device.Descriptor {
	return device.Descriptor{
		Name:    "Blaster " + id,
		ID:      id,
		Key:     "0123456789abcdef",
		IP:      "192.168.1.40",
		Version: device.DefaultVersion,
	}
}

// testHarness wires a session to mock dialers.
type testHarness struct {
	session  *Session
	brokers  *MockBrokerDialer
	devices  *MockDeviceDialer
	logger   *MockLogger
	recorder *MockRecorder
}

func newTestHarness(t *testing.T, id string) *testHarness {
	t.Helper()

	h := &testHarness{
		brokers:  NewMockBrokerDialer(),
		devices:  NewMockDeviceDialer(),
		logger:   &MockLogger{},
		recorder: &MockRecorder{},
	}

	s, err := NewSession(SessionOptions{
		Descriptor: testDescriptor(id),
		Table:      testTable(),
		Config:     testConfig(),
		Logger:     h.logger,
		Recorder:   h.recorder,
		DialBroker: h.brokers.Dial,
		DialDevice: h.devices.Dial,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	h.session = s
	return h
}

// start runs the session in the background and returns the broker it dialled
// and a channel carrying Run's result.
func (h *testHarness) start(t *testing.T, ctx context.Context) (*MockBroker, <-chan error) {
	t.Helper()

	result := make(chan error, 1)
	go func() { result <- h.session.Run(ctx) }()

	return h.brokers.Next(t), result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}
