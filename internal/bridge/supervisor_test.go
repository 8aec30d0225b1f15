package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tuya-ir-bridge/internal/device"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-ir-bridge/internal/tuya"
)

const (
	testConfigJSON  = `{"host": "broker.local", "port": 1883, "topic": "home/"}`
	testDevicesJSON = `[
		{"name": "Lounge", "id": "dev-1", "key": "0123456789abcdef", "ip": "192.168.1.40"},
		{"name": "Bedroom", "id": "dev-2", "key": "fedcba9876543210", "ip": "192.168.1.41", "version": "3.1"}
	]`
	testTemplateTxt = "power_on 0x0123\npower_off 0x0124\n"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testPaths(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	return Paths{
		Config:   writeFile(t, dir, "config.json", testConfigJSON),
		Devices:  writeFile(t, dir, "devices.json", testDevicesJSON),
		Template: writeFile(t, dir, "template.txt", testTemplateTxt),
	}
}

// =============================================================================
// LoadResources Tests
// =============================================================================

func TestLoadResources(t *testing.T) {
	logger := &MockLogger{}
	res, err := LoadResources(testPaths(t), logger)
	if err != nil {
		t.Fatalf("LoadResources() error = %v", err)
	}

	names, _ := logger.Fields("DEBUG: command names")["names"].([]string)
	if len(names) != 2 || names[0] != "power_off" || names[1] != "power_on" {
		t.Errorf("logged command names = %v, want [power_off power_on]", names)
	}

	if res.Table.Len() != 2 {
		t.Errorf("Table.Len() = %d, want 2", res.Table.Len())
	}
	if res.Registry.Len() != 2 {
		t.Errorf("Registry.Len() = %d, want 2", res.Registry.Len())
	}
	if res.Config.Topic != "home/" {
		t.Errorf("Config.Topic = %q, want home/", res.Config.Topic)
	}

	d := res.Registry.Descriptors()[0]
	if d.ID != "dev-1" {
		t.Fatalf("first descriptor = %q, want dev-1", d.ID)
	}
	if d.Version != device.DefaultVersion {
		t.Errorf("Version = %q, want default %q", d.Version, device.DefaultVersion)
	}
}

func TestLoadResources_MissingTemplateIsSoft(t *testing.T) {
	paths := testPaths(t)
	paths.Template = filepath.Join(t.TempDir(), "absent.txt")
	logger := &MockLogger{}

	res, err := LoadResources(paths, logger)
	if err != nil {
		t.Fatalf("LoadResources() error = %v, want nil for missing template", err)
	}
	if res.Table == nil || res.Table.Len() != 0 {
		t.Errorf("Table = %v, want empty table", res.Table)
	}
	if logger.Count("ERROR: command table unavailable, continuing with no commands") != 1 {
		t.Error("missing template not logged")
	}
}

func TestLoadResources_Fatal(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, p *Paths)
		wantErr error
	}{
		{
			name:    "missing config",
			mutate:  func(t *testing.T, p *Paths) { p.Config = filepath.Join(t.TempDir(), "none.json") },
			wantErr: config.ErrResourceNotFound,
		},
		{
			name:    "invalid config",
			mutate:  func(t *testing.T, p *Paths) { p.Config = writeFile(t, t.TempDir(), "config.json", "{not json") },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name:    "missing devices",
			mutate:  func(t *testing.T, p *Paths) { p.Devices = filepath.Join(t.TempDir(), "none.json") },
			wantErr: config.ErrResourceNotFound,
		},
		{
			name: "device without key",
			mutate: func(t *testing.T, p *Paths) {
				p.Devices = writeFile(t, t.TempDir(), "devices.json",
					`[{"name": "x", "id": "dev-1", "ip": "10.0.0.1"}]`)
			},
			wantErr: config.ErrConfigInvalid,
		},
		{
			name: "devices not an array",
			mutate: func(t *testing.T, p *Paths) {
				p.Devices = writeFile(t, t.TempDir(), "devices.json", `{"id": "dev-1"}`)
			},
			wantErr: config.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := testPaths(t)
			tt.mutate(t, &paths)

			_, err := LoadResources(paths, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadResources() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Supervisor Tests
// =============================================================================

func testResources(t *testing.T) Resources {
	t.Helper()
	res, err := LoadResources(testPaths(t), nil)
	if err != nil {
		t.Fatalf("LoadResources() error = %v", err)
	}
	return res
}

func TestNewSupervisor_RequiresResources(t *testing.T) {
	if _, err := NewSupervisor(SupervisorOptions{}); err == nil {
		t.Error("NewSupervisor() should fail without resources")
	}
}

func TestNewSupervisor_OneSessionPerDevice(t *testing.T) {
	sup, err := NewSupervisor(SupervisorOptions{Resources: testResources(t)})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	sessions := sup.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("Sessions() = %d, want 2", len(sessions))
	}
	if sessions[0].Topic() != "home/dev-1/ir/command" || sessions[1].Topic() != "home/dev-2/ir/command" {
		t.Errorf("topics = %q, %q", sessions[0].Topic(), sessions[1].Topic())
	}
	for _, s := range sessions {
		if s.State() != StateDisconnected {
			t.Errorf("%s State() = %v before Start", s.DeviceID(), s.State())
		}
	}
}

func TestSupervisor_StartsAllSessions(t *testing.T) {
	brokers := NewMockBrokerDialer()
	devices := NewMockDeviceDialer()

	sup, err := NewSupervisor(SupervisorOptions{
		Resources:  testResources(t),
		DialBroker: brokers.Dial,
		DialDevice: devices.Dial,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	b1 := brokers.Next(t)
	b2 := brokers.Next(t)

	for _, b := range []*MockBroker{b1, b2} {
		b.SimulateMessage("home/dev-1/ir/command", []byte("power_on"))
		b.SimulateMessage("home/dev-2/ir/command", []byte("power_off"))
	}

	if got := devices.Device("dev-1").Sent(); len(got) != 1 || got[0].DPS["201"] != "0x0123" {
		t.Errorf("dev-1 sent = %+v", got)
	}
	if got := devices.Device("dev-2").Sent(); len(got) != 1 || got[0].DPS["201"] != "0x0124" {
		t.Errorf("dev-2 sent = %+v", got)
	}

	versions := make(map[string]string)
	for _, c := range devices.Calls() {
		versions[c.ID] = c.Version
	}
	if versions["dev-1"] != "3.3" || versions["dev-2"] != "3.1" {
		t.Errorf("dialled versions = %v", versions)
	}

	cancel()
	if err := sup.Wait(); err != nil {
		t.Errorf("Wait() error = %v, want nil after cancel", err)
	}
	for _, s := range sup.Sessions() {
		if s.State() != StateTerminated {
			t.Errorf("%s State() = %v, want Terminated", s.DeviceID(), s.State())
		}
	}
}

func TestSupervisor_FailureIsolated(t *testing.T) {
	brokers := NewMockBrokerDialer()
	devices := NewMockDeviceDialer()
	devices.Fail("dev-1", tuya.ErrConnectionFailed)

	sup, err := NewSupervisor(SupervisorOptions{
		Resources:  testResources(t),
		DialBroker: brokers.Dial,
		DialDevice: devices.Dial,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	broker := brokers.Next(t)
	sessions := sup.Sessions()

	waitForState(t, sessions[0], StateTerminated)
	if sessions[1].State() != StateSubscribed {
		t.Errorf("dev-2 State() = %v, want Subscribed", sessions[1].State())
	}

	broker.SimulateMessage("home/dev-2/ir/command", []byte("power_on"))
	if got := len(devices.Device("dev-2").Sent()); got != 1 {
		t.Errorf("dev-2 sent = %d, want 1", got)
	}

	select {
	case <-sup.Done():
		t.Fatal("Done() closed while a session is still running")
	default:
	}

	cancel()
	err = sup.Wait()
	if !errors.Is(err, ErrConnectionFailure) {
		t.Errorf("Wait() error = %v, want ErrConnectionFailure from dev-1", err)
	}
}

func TestSupervisor_NoRespawn(t *testing.T) {
	brokers := NewMockBrokerDialer()
	devices := NewMockDeviceDialer()

	sup, err := NewSupervisor(SupervisorOptions{
		Resources:  testResources(t),
		DialBroker: brokers.Dial,
		DialDevice: devices.Dial,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	sup.Start(context.Background())
	brokers.Next(t).Drop()
	brokers.Next(t).Drop()

	select {
	case <-sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done() not closed after every session terminated")
	}

	if !errors.Is(sup.Err(), ErrConnectionLost) {
		t.Errorf("Err() = %v, want ErrConnectionLost", sup.Err())
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(brokers.Calls()); got != 2 {
		t.Errorf("broker dials = %d, want 2 (no respawn)", got)
	}
	if got := len(devices.Calls()); got != 2 {
		t.Errorf("device dials = %d, want 2 (no respawn)", got)
	}
}

func TestSupervisor_StartTwice(t *testing.T) {
	brokers := NewMockBrokerDialer()
	devices := NewMockDeviceDialer()

	sup, err := NewSupervisor(SupervisorOptions{
		Resources:  testResources(t),
		DialBroker: brokers.Dial,
		DialDevice: devices.Dial,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)
	sup.Start(ctx)
	brokers.Next(t)
	brokers.Next(t)
	cancel()

	if err := sup.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if got := len(devices.Calls()); got != 2 {
		t.Errorf("device dials = %d, want 2", got)
	}
}

func TestSupervisor_WaitWithoutStart(t *testing.T) {
	sup, err := NewSupervisor(SupervisorOptions{Resources: testResources(t)})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	if err := sup.Wait(); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
}

func TestSupervisor_NoDevices(t *testing.T) {
	res := testResources(t)
	res.Registry = device.NewRegistry(nil)

	sup, err := NewSupervisor(SupervisorOptions{Resources: res})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	sup.Start(context.Background())

	select {
	case <-sup.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed for an empty registry")
	}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s State() = %v, want %v", s.DeviceID(), s.State(), want)
}
