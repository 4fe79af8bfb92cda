package adcs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tsat-adcs/internal/config"
	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/spi"
)

type fakeMag struct {
	mu sync.Mutex
	n  int
}

// ReadRaw returns a field that ramps on every read so the derivative never
// vanishes.
func (m *fakeMag) ReadRaw() ([3]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	v := int16(m.n * 50 % 30000)
	return [3]int16{v, -v, 0}, nil
}

func (m *fakeMag) CountsToTesla(raw [3]int16) [3]float64 {
	return [3]float64{float64(raw[0]) * 1e-6, float64(raw[1]) * 1e-6, float64(raw[2]) * 1e-6}
}

type call struct {
	axis detumble.Axis
	dir  detumble.Direction
}

type fakeActuators struct {
	mu    sync.Mutex
	calls []call
}

func (a *fakeActuators) SetAxis(axis detumble.Axis, dir detumble.Direction, _ detumble.Power) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call{axis, dir})
	return nil
}

func (a *fakeActuators) snapshot() []call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]call(nil), a.calls...)
}

type fakeGyro struct {
	err error
}

func (g fakeGyro) ReadRateDPS() ([3]float64, error) {
	if g.err != nil {
		return [3]float64{}, g.err
	}
	return [3]float64{3, 0, 4}, nil
}

func fastConfig() Config {
	return Config{
		Controller: detumble.Config{
			Alpha:           0.5,
			Gain:            1e3,
			Threshold:       0.01,
			SampleDuration:  10 * time.Millisecond,
			ActuateDuration: 20 * time.Millisecond,
			DecayDuration:   10 * time.Millisecond,
		},
		PollInterval: time.Millisecond,
		GyroInterval: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, s *Service, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met; last snapshot %+v", s.Snapshot())
	return Snapshot{}
}

func TestNew_RejectsMissingAdapters(t *testing.T) {
	if _, err := New(fastConfig(), Deps{Actuators: &fakeActuators{}}); err == nil {
		t.Fatalf("expected error for nil magnetometer")
	}
	cfg := fastConfig()
	cfg.Controller.Alpha = 0
	if _, err := New(cfg, Deps{Magnetometer: &fakeMag{}, Actuators: &fakeActuators{}}); err == nil {
		t.Fatalf("expected error for invalid alpha")
	}
}

func TestService_RunsCyclesAndStopsSafe(t *testing.T) {
	act := &fakeActuators{}
	var published int
	var pubMu sync.Mutex
	s, err := New(fastConfig(), Deps{
		Magnetometer: &fakeMag{},
		Actuators:    act,
		Gyro:         fakeGyro{},
		Publish: func(Snapshot) {
			pubMu.Lock()
			published++
			pubMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected error on second Start")
	}

	snap := waitFor(t, s, func(sn Snapshot) bool { return sn.Controller.Cycles >= 2 && sn.Rate.Valid })
	if !snap.Running {
		t.Fatalf("expected running")
	}
	if snap.Rate.NormDPS != 5 {
		t.Fatalf("rate norm=%v want 5", snap.Rate.NormDPS)
	}

	s.Close()
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done not closed after Close")
	}
	if s.Snapshot().Running {
		t.Fatalf("expected stopped")
	}

	calls := act.snapshot()
	if len(calls) < 3 {
		t.Fatalf("calls=%d", len(calls))
	}
	for _, c := range calls[len(calls)-3:] {
		if c.dir != detumble.Off {
			t.Fatalf("final commands=%v want all off", calls[len(calls)-3:])
		}
	}
	var sawDrive bool
	for _, c := range calls {
		if c.dir != detumble.Off {
			sawDrive = true
			break
		}
	}
	if !sawDrive {
		t.Fatalf("expected at least one non-off command")
	}
	pubMu.Lock()
	defer pubMu.Unlock()
	if published < 2 {
		t.Fatalf("published=%d", published)
	}
}

func TestService_ContextCancelStopsLoop(t *testing.T) {
	s, err := New(fastConfig(), Deps{Magnetometer: &fakeMag{}, Actuators: &fakeActuators{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}

func TestService_GyroErrorReported(t *testing.T) {
	var mu sync.Mutex
	var ops []string
	s, err := New(fastConfig(), Deps{
		Magnetometer: &fakeMag{},
		Actuators:    &fakeActuators{},
		Gyro:         fakeGyro{err: errors.New("spi timeout")},
		Hooks: detumble.Hooks{OnError: func(op string, err error) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitFor(t, s, func(sn Snapshot) bool { return sn.Rate.LastError != "" })
	s.Close()
	if snap.Rate.Valid {
		t.Fatalf("rate should be invalid")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ops) == 0 || ops[0] != "read_rate" {
		t.Fatalf("ops=%v", ops)
	}
}

func TestClose_BeforeStart(t *testing.T) {
	s, err := New(fastConfig(), Deps{Magnetometer: &fakeMag{}, Actuators: &fakeActuators{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()
}

func TestServiceConfig_FromYAMLConfig(t *testing.T) {
	cfg := config.Default()
	sc := ServiceConfig(cfg)
	if err := sc.Controller.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sc.Controller.Threshold != 0.01 || sc.PollInterval != 5*time.Millisecond {
		t.Fatalf("cfg=%+v", sc)
	}
	tc := TorquerConfig(cfg.Torquers)
	if tc.Axes[1].Enable != cfg.Torquers.Y.Enable {
		t.Fatalf("torquer y=%+v", tc.Axes[1])
	}
}

func TestOpenHardware_BusError(t *testing.T) {
	old := openSPI
	openSPI = func(path string, cfg spi.Config) (*spi.Dev, error) {
		return nil, errors.New("no such file")
	}
	t.Cleanup(func() { openSPI = old })

	if _, err := OpenHardware(config.Default()); err == nil {
		t.Fatalf("expected error")
	}
}
