package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tsat-adcs/internal/logging"
)

type Config struct {
	Log          LogConfig          `yaml:"log"`
	Controller   ControllerConfig   `yaml:"controller"`
	Magnetometer MagnetometerConfig `yaml:"magnetometer"`
	Gyro         GyroConfig         `yaml:"gyro"`
	Torquers     TorquersConfig     `yaml:"torquers"`
	Trace        TraceConfig        `yaml:"trace"`
	Web          WebConfig          `yaml:"web"`
	Sim          SimConfig          `yaml:"sim"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ControllerConfig struct {
	Alpha           float64       `yaml:"alpha"`
	Gain            float64       `yaml:"gain"`
	Threshold       *float64      `yaml:"threshold"`
	SampleDuration  time.Duration `yaml:"sample_duration"`
	ActuateDuration time.Duration `yaml:"actuate_duration"`
	DecayDuration   time.Duration `yaml:"decay_duration"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	Trace           bool          `yaml:"trace"`
}

type MagnetometerConfig struct {
	SPIDevice string `yaml:"spi_device"`
	SpeedHz   uint32 `yaml:"speed_hz"`
}

type GyroConfig struct {
	Enable    bool          `yaml:"enable"`
	SPIDevice string        `yaml:"spi_device"`
	SpeedHz   uint32        `yaml:"speed_hz"`
	Interval  time.Duration `yaml:"interval"`
}

type AxisLinesConfig struct {
	In1    int `yaml:"in1"`
	In2    int `yaml:"in2"`
	Enable int `yaml:"enable"`
}

type TorquersConfig struct {
	Chip     string          `yaml:"chip"`
	Consumer string          `yaml:"consumer"`
	X        AxisLinesConfig `yaml:"x"`
	Y        AxisLinesConfig `yaml:"y"`
	Z        AxisLinesConfig `yaml:"z"`
}

type TraceConfig struct {
	// Sink is "log" or "serial".
	Sink       string `yaml:"sink"`
	SerialPort string `yaml:"serial_port"`
	Baud       int    `yaml:"baud"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type SimConfig struct {
	// InitialRateDPS is the body rate at t=0 in degrees per second.
	InitialRateDPS [3]float64 `yaml:"initial_rate_dps"`
	// Inertia is the diagonal of the inertia tensor in kg m^2.
	Inertia [3]float64 `yaml:"inertia"`
	// FieldTesla is the inertial magnetic field at t=0.
	FieldTesla [3]float64 `yaml:"field_tesla"`
	// OrbitPeriod rotates the inertial field twice per orbit about the
	// inertial Y axis, approximating a polar dipole pass. Zero keeps it fixed.
	OrbitPeriod time.Duration `yaml:"orbit_period"`
	MaxMoment   float64       `yaml:"max_moment"`
	// Gain overrides controller.gain for simulated runs when > 0.
	Gain        float64       `yaml:"gain"`
	Step        time.Duration `yaml:"step"`
	Duration    time.Duration `yaml:"duration"`
	NoiseCounts float64       `yaml:"noise_counts"`
	Seed        int64         `yaml:"seed"`
	Record      string        `yaml:"record"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// DefaultAndValidate fills zero values with defaults and validates cfg.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}

	c := &cfg.Controller
	if c.Alpha == 0 {
		c.Alpha = 0.2
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("controller.alpha must be in (0,1)")
	}
	if c.Gain == 0 {
		c.Gain = 1.0
	}
	if c.Gain < 0 {
		return fmt.Errorf("controller.gain must be > 0")
	}
	if c.Threshold == nil {
		th := 0.01
		c.Threshold = &th
	}
	if *c.Threshold < 0 {
		return fmt.Errorf("controller.threshold must be >= 0")
	}
	if c.SampleDuration <= 0 {
		c.SampleDuration = 100 * time.Millisecond
	}
	if c.ActuateDuration <= 0 {
		c.ActuateDuration = 1200 * time.Millisecond
	}
	if c.DecayDuration <= 0 {
		c.DecayDuration = 100 * time.Millisecond
	}
	for name, d := range map[string]time.Duration{
		"controller.sample_duration":  c.SampleDuration,
		"controller.actuate_duration": c.ActuateDuration,
		"controller.decay_duration":   c.DecayDuration,
	} {
		if d < time.Millisecond {
			return fmt.Errorf("%s must be >= 1ms", name)
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.PollInterval > c.SampleDuration {
		return fmt.Errorf("controller.poll_interval must not exceed controller.sample_duration")
	}

	if cfg.Magnetometer.SPIDevice == "" {
		cfg.Magnetometer.SPIDevice = "/dev/spidev0.0"
	}
	if cfg.Magnetometer.SpeedHz == 0 {
		cfg.Magnetometer.SpeedHz = 1_000_000
	}

	if cfg.Gyro.SPIDevice == "" {
		cfg.Gyro.SPIDevice = "/dev/spidev1.0"
	}
	if cfg.Gyro.SpeedHz == 0 {
		cfg.Gyro.SpeedHz = 1_000_000
	}
	if cfg.Gyro.Interval <= 0 {
		cfg.Gyro.Interval = 200 * time.Millisecond
	}

	t := &cfg.Torquers
	if t.Chip == "" {
		t.Chip = "gpiochip0"
	}
	if t.Consumer == "" {
		t.Consumer = "tsat-adcs"
	}
	defaultLines(&t.X, AxisLinesConfig{In1: 5, In2: 6, Enable: 13})
	defaultLines(&t.Y, AxisLinesConfig{In1: 16, In2: 20, Enable: 21})
	defaultLines(&t.Z, AxisLinesConfig{In1: 23, In2: 24, Enable: 25})
	seen := map[int]string{}
	for axis, l := range map[string]AxisLinesConfig{"x": t.X, "y": t.Y, "z": t.Z} {
		for pin, off := range map[string]int{"in1": l.In1, "in2": l.In2, "enable": l.Enable} {
			key := "torquers." + axis + "." + pin
			if off < 0 {
				return fmt.Errorf("%s must be >= 0", key)
			}
			if other, ok := seen[off]; ok {
				a, b := other, key
				if b < a {
					a, b = b, a
				}
				return fmt.Errorf("%s and %s use the same line %d", a, b, off)
			}
			seen[off] = key
		}
	}

	cfg.Trace.Sink = strings.ToLower(strings.TrimSpace(cfg.Trace.Sink))
	if cfg.Trace.Sink == "" {
		cfg.Trace.Sink = "log"
	}
	switch cfg.Trace.Sink {
	case "log":
	case "serial":
		if cfg.Trace.SerialPort == "" {
			return fmt.Errorf("trace.serial_port is required when trace.sink is 'serial'")
		}
	default:
		return fmt.Errorf("trace.sink must be 'log' or 'serial'")
	}
	if cfg.Trace.Baud == 0 {
		cfg.Trace.Baud = 115200
	}
	if cfg.Trace.Baud < 0 {
		return fmt.Errorf("trace.baud must be > 0")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	return defaultSim(&cfg.Sim)
}

func defaultLines(l *AxisLinesConfig, def AxisLinesConfig) {
	if *l == (AxisLinesConfig{}) {
		*l = def
	}
}

// Simulator defaults (safe even if sim is never run).
func defaultSim(s *SimConfig) error {
	if s.InitialRateDPS == [3]float64{} {
		s.InitialRateDPS = [3]float64{5.7, -5.7, 1.15}
	}
	if s.Inertia == [3]float64{} {
		s.Inertia = [3]float64{0.01, 0.01, 0.01}
	}
	for i, v := range s.Inertia {
		if v <= 0 {
			return fmt.Errorf("sim.inertia[%d] must be > 0", i)
		}
	}
	if s.FieldTesla == [3]float64{} {
		s.FieldTesla = [3]float64{0, 0, 4.5e-5}
	}
	if s.OrbitPeriod < 0 {
		return fmt.Errorf("sim.orbit_period must be >= 0")
	}
	if s.MaxMoment == 0 {
		s.MaxMoment = 0.2
	}
	if s.MaxMoment < 0 {
		return fmt.Errorf("sim.max_moment must be > 0")
	}
	if s.Gain == 0 {
		s.Gain = 5e4
	}
	if s.Gain < 0 {
		return fmt.Errorf("sim.gain must be > 0")
	}
	if s.Step <= 0 {
		s.Step = 10 * time.Millisecond
	}
	if s.Step < time.Millisecond || s.Step%time.Millisecond != 0 {
		return fmt.Errorf("sim.step must be a whole number of milliseconds")
	}
	if s.Duration <= 0 {
		s.Duration = 15 * time.Minute
	}
	if s.NoiseCounts < 0 {
		return fmt.Errorf("sim.noise_counts must be >= 0")
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	return nil
}
