package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	c := cfg.Controller
	if c.Alpha != 0.2 || c.Gain != 1.0 || *c.Threshold != 0.01 {
		t.Fatalf("alpha=%v gain=%v threshold=%v", c.Alpha, c.Gain, *c.Threshold)
	}
	if c.SampleDuration != 100*time.Millisecond || c.ActuateDuration != 1200*time.Millisecond || c.DecayDuration != 100*time.Millisecond {
		t.Fatalf("durations=%s/%s/%s", c.SampleDuration, c.ActuateDuration, c.DecayDuration)
	}
	if c.PollInterval != 5*time.Millisecond {
		t.Fatalf("poll_interval=%s want 5ms", c.PollInterval)
	}
	if cfg.Log.Level != "info" || cfg.Trace.Sink != "log" || cfg.Trace.Baud != 115200 {
		t.Fatalf("log=%q sink=%q baud=%d", cfg.Log.Level, cfg.Trace.Sink, cfg.Trace.Baud)
	}
	if cfg.Magnetometer.SPIDevice != "/dev/spidev0.0" || cfg.Gyro.Interval != 200*time.Millisecond {
		t.Fatalf("mag=%q gyro interval=%s", cfg.Magnetometer.SPIDevice, cfg.Gyro.Interval)
	}
	if cfg.Torquers.Z != (AxisLinesConfig{In1: 23, In2: 24, Enable: 25}) {
		t.Fatalf("torquers.z=%+v", cfg.Torquers.Z)
	}
	// Simulator defaults should be populated even if sim is absent.
	if cfg.Sim.Step != 10*time.Millisecond || cfg.Sim.MaxMoment <= 0 || cfg.Sim.Gain <= 0 {
		t.Fatalf("expected sim defaults applied: %+v", cfg.Sim)
	}
}

func TestLoad_ZeroThresholdIsKept(t *testing.T) {
	path := writeTempConfig(t, "controller:\n  threshold: 0\n  actuate_duration: 2s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if *cfg.Controller.Threshold != 0 {
		t.Fatalf("threshold=%v want 0", *cfg.Controller.Threshold)
	}
	if cfg.Controller.ActuateDuration != 2*time.Second {
		t.Fatalf("actuate=%s want 2s", cfg.Controller.ActuateDuration)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"AlphaRange", "controller:\n  alpha: 1.5\n", "controller.alpha must be in (0,1)"},
		{"NegativeGain", "controller:\n  gain: -1\n", "controller.gain must be > 0"},
		{"NegativeThreshold", "controller:\n  threshold: -0.1\n", "controller.threshold must be >= 0"},
		{"SubMillisecondPhase", "controller:\n  decay_duration: 500us\n", "controller.decay_duration must be >= 1ms"},
		{"PollTooSlow", "controller:\n  poll_interval: 1s\n", "controller.poll_interval must not exceed controller.sample_duration"},
		{"BadLevel", "log:\n  level: loud\n", "log.level must be one of debug, info, warn, error"},
		{"SerialNeedsPort", "trace:\n  sink: serial\n", "trace.serial_port is required when trace.sink is 'serial'"},
		{"UnknownSink", "trace:\n  sink: udp\n", "trace.sink must be 'log' or 'serial'"},
		{"DuplicateLine", "torquers:\n  x: {in1: 5, in2: 6, enable: 13}\n  y: {in1: 5, in2: 20, enable: 21}\n", "torquers.x.in1 and torquers.y.in1 use the same line 5"},
		{"SimStep", "sim:\n  step: 1500us\n", "sim.step must be a whole number of milliseconds"},
		{"SimInertia", "sim:\n  inertia: [0.01, 0, 0.01]\n", "sim.inertia[1] must be > 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate(Default()) error: %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "tsat-adcs.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Gyro.Enable || cfg.Sim.OrbitPeriod != 95*time.Minute {
		t.Fatalf("gyro=%v orbit=%s", cfg.Gyro.Enable, cfg.Sim.OrbitPeriod)
	}
	// 45 uT rotating at 0.1 rad/s must command a coil.
	if m := cfg.Controller.Gain * 4.5e-5 * 0.1; m <= *cfg.Controller.Threshold {
		t.Fatalf("gain=%v gives moment %g, never above threshold %v", cfg.Controller.Gain, m, *cfg.Controller.Threshold)
	}
}
