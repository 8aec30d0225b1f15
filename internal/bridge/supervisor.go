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
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/logging"
)

// Paths locates the three startup resources.
type Paths struct {
	Config   string
	Devices  string
	Template string
}

// DefaultPaths returns the working-directory defaults.
func DefaultPaths() Paths {
	return Paths{
		Config:   config.DefaultConfigPath,
		Devices:  config.DefaultDevicesPath,
		Template: config.DefaultTemplatePath,
	}
}

// Resources are the immutable values every session is built from.
type Resources struct {
	Config   *config.Config
	Registry *device.Registry
	Table    *command.Table
}

// LoadResources reads the command table, config and device registry.
//
// A missing or unreadable command table is logged and replaced by an empty
// table. Config and registry failures are returned and are fatal to the caller.
//
// Returns:
//   - error: wrapping config.ErrResourceNotFound or config.ErrConfigInvalid
func LoadResources(paths Paths, logger Logger) (Resources, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	table, err := command.LoadTable(paths.Template)
	if err != nil {
		logger.Error("command table unavailable, continuing with no commands",
			"path", paths.Template,
			"error", err)
	} else {
		logger.Info("command table loaded", "path", paths.Template, "commands", table.Len())
		logger.Debug("command names", "names", table.Names())
	}

	cfg, err := config.Load(paths.Config)
	if err != nil {
		return Resources{}, fmt.Errorf("loading config: %w", err)
	}

	registry, err := device.LoadRegistry(paths.Devices)
	if err != nil {
		return Resources{}, fmt.Errorf("loading devices: %w", err)
	}

	return Resources{Config: cfg, Registry: registry, Table: table}, nil
}

// SupervisorOptions holds configuration for creating a supervisor.
type SupervisorOptions struct {
	Resources Resources

	// Logger is the root logger; each session gets a device-scoped child.
	Logger *logging.Logger

	// Recorder is optional dispatch telemetry shared by all sessions.
	Recorder DispatchRecorder

	// DialBroker and DialDevice override the production dialers.
	DialBroker BrokerDialer
	DialDevice DeviceDialer
}

// Supervisor starts one session per device and tracks their termination.
// Terminated sessions are not restarted.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	sessions []*Session
	logger   *logging.Logger

	startOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup
	done      chan struct{}

	errMu sync.Mutex
	errs  []error
}

// NewSupervisor builds one session per registry descriptor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	res := opts.Resources
	if res.Config == nil || res.Registry == nil || res.Table == nil {
		return nil, fmt.Errorf("config, registry and command table are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	sup := &Supervisor{
		logger: logger,
		done:   make(chan struct{}),
	}

	for _, d := range res.Registry.Descriptors() {
		sessionLogger := logger.ForDevice(d.ID, d.DisplayName())

		sessOpts := SessionOptions{
			Descriptor: d,
			Table:      res.Table,
			Config:     res.Config,
			Logger:     sessionLogger,
			Recorder:   opts.Recorder,
			DialBroker: opts.DialBroker,
			DialDevice: opts.DialDevice,
		}
		if sessOpts.DialDevice == nil {
			sessOpts.DialDevice = DeviceDialerWithLogger(sessionLogger)
		}

		s, err := NewSession(sessOpts)
		if err != nil {
			return nil, fmt.Errorf("creating session for %s: %w", d.ID, err)
		}
		sup.sessions = append(sup.sessions, s)
	}

	return sup, nil
}

// Start launches every session in its own goroutine and returns immediately.
// Calling Start more than once has no effect.
func (sup *Supervisor) Start(ctx context.Context) {
	sup.startOnce.Do(func() {
		sup.started.Store(true)
		for _, s := range sup.sessions {
			sup.wg.Add(1)
			go sup.run(ctx, s)
		}

		go func() {
			sup.wg.Wait()
			close(sup.done)
		}()

		sup.logger.Info("sessions started", "count", len(sup.sessions))
	})
}

func (sup *Supervisor) run(ctx context.Context, s *Session) {
	defer sup.wg.Done()

	if err := s.Run(ctx); err != nil {
		sup.errMu.Lock()
		sup.errs = append(sup.errs, fmt.Errorf("%s: %w", s.DeviceID(), err))
		sup.errMu.Unlock()
	}
}

// Done is closed once every started session has terminated.
func (sup *Supervisor) Done() <-chan struct{} {
	return sup.done
}

// Wait blocks until every started session has terminated and returns their
// joined errors. It returns immediately if Start was never called.
func (sup *Supervisor) Wait() error {
	if !sup.started.Load() {
		return nil
	}
	<-sup.done
	return sup.Err()
}

// Err returns the joined errors of sessions that have terminated with one.
func (sup *Supervisor) Err() error {
	sup.errMu.Lock()
	defer sup.errMu.Unlock()
	return errors.Join(sup.errs...)
}

// Sessions returns the managed sessions in registry order.
func (sup *Supervisor) Sessions() []*Session {
	out := make([]*Session, len(sup.sessions))
	copy(out, sup.sessions)
	return out
}
