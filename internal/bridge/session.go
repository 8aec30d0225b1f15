package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/tuya-ir-bridge/internal/command"
	"github.com/nerrad567/tuya-ir-bridge/internal/device"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-ir-bridge/internal/tuya"
)

const (
	// commandQoS is the subscription QoS: at most once.
	commandQoS = 0

	// irDataPoint is the Tuya data point that carries an IR code.
	irDataPoint = "201"
)

// Dispatch outcomes reported to the DispatchRecorder.
const (
	OutcomeSent           = "sent"
	OutcomeUnknownCommand = "unknown_command"
	OutcomeSendFailed     = "send_failed"
)

// Logger defines the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BrokerClient is the broker connection a session owns.
// *mqtt.Client satisfies it.
type BrokerClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Done() <-chan struct{}
	Close() error
}

// BrokerHooks are the connection callbacks a BrokerDialer must honour.
type BrokerHooks struct {
	// OnConnect runs after every successful (re)connection, including the first.
	OnConnect func(BrokerClient)

	// OnConnectionLost runs each time an established connection drops.
	OnConnectionLost func(err error)
}

// BrokerDialer opens a broker connection wired to hooks.
type BrokerDialer func(opts mqtt.Options, hooks BrokerHooks) (BrokerClient, error)

// DeviceConn is the device connection a session owns.
// *tuya.Client satisfies it.
type DeviceConn interface {
	GeneratePayload(cmd tuya.Command, dps map[string]any) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// deviceReporter is implemented by device connections that keep their own
// counters. *tuya.Client satisfies it.
type deviceReporter interface {
	Address() string
	Version() string
	Stats() tuya.Stats
}

// DeviceDialer opens a device connection.
type DeviceDialer func(ctx context.Context, cfg tuya.Config) (DeviceConn, error)

// DispatchRecorder receives one call per handled command. Optional.
// *influxdb.Client satisfies it.
type DispatchRecorder interface {
	RecordDispatch(deviceID, command, outcome string)
}

// DialBroker is the production BrokerDialer backed by paho.
func DialBroker(opts mqtt.Options, hooks BrokerHooks) (BrokerClient, error) {
	var mh mqtt.Hooks
	if hooks.OnConnect != nil {
		mh.OnConnect = func(c *mqtt.Client) { hooks.OnConnect(c) }
	}
	if hooks.OnConnectionLost != nil {
		mh.OnConnectionLost = func(_ *mqtt.Client, err error) { hooks.OnConnectionLost(err) }
	}

	c, err := mqtt.Connect(opts, mh)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeviceDialerWithLogger returns the production DeviceDialer backed by the
// tuya package, attaching logger for frame debug output.
func DeviceDialerWithLogger(logger tuya.Logger) DeviceDialer {
	return func(ctx context.Context, cfg tuya.Config) (DeviceConn, error) {
		c, err := tuya.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			c.SetLogger(logger)
		}
		return c, nil
	}
}

// SessionOptions holds configuration for creating a session.
type SessionOptions struct {
	// Descriptor identifies the device. Required.
	Descriptor device.Descriptor

	// Table resolves command names. Required; may be empty.
	Table *command.Table

	// Config supplies broker and device settings. Required.
	Config *config.Config

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional dispatch telemetry.
	Recorder DispatchRecorder

	// DialBroker defaults to DialBroker.
	DialBroker BrokerDialer

	// DialDevice defaults to DeviceDialerWithLogger(Logger).
	DialDevice DeviceDialer
}

// SessionStats holds per-session counters.
type SessionStats struct {
	Received       uint64
	Ignored        uint64
	Sent           uint64
	UnknownCommand uint64
	SendFailed     uint64
}

// Session bridges one device's command topic to the device.
//
// Thread Safety: All methods are safe for concurrent use. OnMessage calls
// are serialised.
type Session struct {
	desc     device.Descriptor
	table    *command.Table
	cfg      *config.Config
	topic    string
	logger   Logger
	recorder DispatchRecorder

	dialBroker BrokerDialer
	dialDevice DeviceDialer

	// ctx is the Run context, used for device sends.
	ctx context.Context

	state atomic.Int32

	device   DeviceConn
	deviceMu sync.RWMutex

	// msgMu serialises message handling.
	msgMu sync.Mutex

	received       atomic.Uint64
	ignored        atomic.Uint64
	sent           atomic.Uint64
	unknownCommand atomic.Uint64
	sendFailed     atomic.Uint64
}

// NewSession creates a session in the Disconnected state.
// Call Run to connect.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Table == nil {
		return nil, fmt.Errorf("command table is required")
	}
	if opts.Descriptor.ID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	s := &Session{
		desc:       opts.Descriptor,
		table:      opts.Table,
		cfg:        opts.Config,
		topic:      mqtt.Topics{Prefix: opts.Config.Topic}.DeviceCommand(opts.Descriptor.ID, mqtt.CategoryIR),
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		dialBroker: opts.DialBroker,
		dialDevice: opts.DialDevice,
		ctx:        context.Background(),
	}

	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.dialBroker == nil {
		s.dialBroker = DialBroker
	}
	if s.dialDevice == nil {
		s.dialDevice = DeviceDialerWithLogger(s.logger)
	}

	return s, nil
}

// Run connects the session and blocks until ctx is cancelled or the broker
// connection ends for good. The session is Terminated when Run returns.
//
// Returns:
//   - nil when ctx was cancelled
//   - error wrapping ErrConnectionFailure or ErrConnectionLost otherwise
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateTerminated)

	s.ctx = ctx
	s.setState(StateConnecting)

	dev, err := s.dialDevice(ctx, s.deviceConfig())
	if err != nil {
		s.logger.Error("device connection failed",
			"address", s.desc.IP,
			"version", s.desc.Version.String(),
			"error", err)
		return fmt.Errorf("%w: device: %w", ErrConnectionFailure, err)
	}
	s.setDevice(dev)
	defer s.closeDevice()
	defer s.logSummary()

	broker, err := s.dialBroker(mqtt.OptionsFromConfig(s.cfg, s.desc.ID), BrokerHooks{
		OnConnect:        s.OnConnected,
		OnConnectionLost: s.OnConnectionLost,
	})
	if err != nil {
		s.logger.Error("broker connection failed",
			"broker", s.cfg.BrokerURL(),
			"error", err)
		return fmt.Errorf("%w: broker: %w", ErrConnectionFailure, err)
	}
	defer broker.Close()

	s.logger.Info("session started", "topic", s.topic)

	select {
	case <-ctx.Done():
		s.logger.Info("session stopped")
		return nil
	case <-broker.Done():
		s.logger.Warn("broker connection lost, session terminated")
		return ErrConnectionLost
	}
}

// OnConnected subscribes to the session's command topic. It runs after every
// broker (re)connection. A failed subscribe is logged and not retried.
func (s *Session) OnConnected(client BrokerClient) {
	err := client.Subscribe(s.topic, commandQoS, func(_ string, payload []byte) error {
		s.OnMessage(payload)
		return nil
	})
	if err != nil {
		s.logger.Error("subscribe failed", "topic", s.topic, "error", err)
		return
	}

	// Connecting covers both the first connection and a reconnect after a drop.
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateSubscribed))
	s.logger.Info("subscribed", "topic", s.topic)
}

// OnConnectionLost records a dropped broker connection. With auto-reconnect
// the session goes back to Connecting until OnConnected runs again; without
// it Run sees the broker finish and terminates the session.
func (s *Session) OnConnectionLost(err error) {
	if !s.cfg.MQTT.AutoReconnect {
		return
	}

	if !s.state.CompareAndSwap(int32(StateSubscribed), int32(StateConnecting)) {
		s.state.CompareAndSwap(int32(StateDelivering), int32(StateConnecting))
	}
	s.logger.Warn("broker connection lost, reconnecting",
		"broker", s.cfg.BrokerURL(),
		"error", err)
}

// OnMessage handles one command payload. Errors are logged, never returned.
func (s *Session) OnMessage(payload []byte) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	s.received.Add(1)
	s.logger.Info("message received", "topic", s.topic, "payload", string(payload))

	if len(payload) == 0 {
		s.ignored.Add(1)
		return
	}

	if s.state.CompareAndSwap(int32(StateSubscribed), int32(StateDelivering)) {
		defer s.state.CompareAndSwap(int32(StateDelivering), int32(StateSubscribed))
	}

	name := string(payload)

	code, err := s.table.Lookup(name)
	if err != nil {
		s.unknownCommand.Add(1)
		s.logger.Warn("unknown command", "command", name, "error", err)
		s.record(name, OutcomeUnknownCommand)
		return
	}

	if err := s.deliver(code); err != nil {
		s.sendFailed.Add(1)
		s.logger.Error("command delivery failed", "command", name, "error", err)
		s.record(name, OutcomeSendFailed)
		return
	}

	s.sent.Add(1)
	s.logger.Info("command sent", "command", name, "code", code)
	s.record(name, OutcomeSent)
}

// deliver builds the CONTROL frame for code and writes it to the device.
func (s *Session) deliver(code string) error {
	dev := s.getDevice()
	if dev == nil {
		return ErrNoDevice
	}

	frame, err := dev.GeneratePayload(tuya.CommandControl, map[string]any{irDataPoint: code})
	if err != nil {
		return fmt.Errorf("building payload: %w", err)
	}

	if err := dev.Send(s.ctx, frame); err != nil {
		return err
	}
	return nil
}

// logSummary logs the session counters, plus the device connection's own
// counters when it keeps them.
func (s *Session) logSummary() {
	st := s.Stats()
	args := []any{
		"received", st.Received,
		"sent", st.Sent,
		"unknown_command", st.UnknownCommand,
		"send_failed", st.SendFailed,
		"ignored", st.Ignored,
	}

	if r, ok := s.getDevice().(deviceReporter); ok {
		ds := r.Stats()
		args = append(args,
			"device_address", r.Address(),
			"device_version", r.Version(),
			"frames_sent", ds.FramesSent,
			"device_errors", ds.ErrorsTotal,
			"device_dials", ds.DialsTotal,
		)
	}

	s.logger.Info("session summary", args...)
}

func (s *Session) record(name, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordDispatch(s.desc.ID, name, outcome)
	}
}

// deviceConfig maps the descriptor and shared settings to a device connection.
func (s *Session) deviceConfig() tuya.Config {
	return tuya.Config{
		ID:             s.desc.ID,
		Address:        s.desc.IP,
		Port:           s.cfg.Tuya.Port,
		Key:            s.desc.Key,
		Version:        s.desc.Version.String(),
		ConnectTimeout: s.cfg.GetTuyaConnectTimeout(),
		SendTimeout:    s.cfg.GetTuyaSendTimeout(),
		Persistent:     s.cfg.Tuya.Persistent,
		Debug:          s.cfg.Tuya.Debug,
	}
}

func (s *Session) setDevice(dev DeviceConn) {
	s.deviceMu.Lock()
	s.device = dev
	s.deviceMu.Unlock()
}

func (s *Session) getDevice() DeviceConn {
	s.deviceMu.RLock()
	defer s.deviceMu.RUnlock()
	return s.device
}

func (s *Session) closeDevice() {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	if s.device != nil {
		if err := s.device.Close(); err != nil && !errors.Is(err, tuya.ErrNotConnected) {
			s.logger.Warn("device close failed", "error", err)
		}
		s.device = nil
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// DeviceID returns the id of the bridged device.
func (s *Session) DeviceID() string {
	return s.desc.ID
}

// Topic returns the command topic this session subscribes to.
func (s *Session) Topic() string {
	return s.topic
}

// Stats returns the session's counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Received:       s.received.Load(),
		Ignored:        s.ignored.Load(),
		Sent:           s.sent.Load(),
		UnknownCommand: s.unknownCommand.Load(),
		SendFailed:     s.sendFailed.Load(),
	}
}
