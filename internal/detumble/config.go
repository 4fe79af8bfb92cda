package detumble

import (
	"fmt"
	"time"
)

// Config holds the controller tuning. It is fixed once a Controller is built.
type Config struct {
	// Alpha is the one-pole filter coefficient in (0,1). Higher values track
	// the raw field faster but pass more noise. Flight value is 0.2.
	Alpha float64
	// Gain is the B-dot gain K (> 0): moment = -Gain * dB/dt, with dB/dt in
	// Tesla per second.
	Gain float64
	// Threshold is the dead band half-width on the commanded moment. An axis
	// is driven only when |moment| is strictly greater.
	Threshold float64

	// SampleDuration matches the magnetometer data-rate window.
	SampleDuration time.Duration
	// ActuateDuration gives the commanded torque time to act at the highest
	// expected tumble rate (~10 deg/s) before re-sampling.
	ActuateDuration time.Duration
	// DecayDuration lets torquer core magnetization dissipate so it does not
	// bias the next sample.
	DecayDuration time.Duration
}

// DefaultConfig returns the flight tuning.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.2,
		Gain:            1.0,
		Threshold:       0.01,
		SampleDuration:  100 * time.Millisecond,
		ActuateDuration: 1200 * time.Millisecond,
		DecayDuration:   100 * time.Millisecond,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return fmt.Errorf("detumble: alpha=%v must be in (0,1)", c.Alpha)
	}
	if !(c.Gain > 0) {
		return fmt.Errorf("detumble: gain=%v must be > 0", c.Gain)
	}
	if !(c.Threshold >= 0) {
		return fmt.Errorf("detumble: threshold=%v must be >= 0", c.Threshold)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"sample", c.SampleDuration},
		{"actuate", c.ActuateDuration},
		{"decay", c.DecayDuration},
	} {
		if d.v < time.Millisecond {
			return fmt.Errorf("detumble: %s duration=%s must be >= 1ms", d.name, d.v)
		}
		if d.v.Milliseconds() > int64(maxPhaseMillis) {
			return fmt.Errorf("detumble: %s duration=%s too long for the tick counter", d.name, d.v)
		}
	}
	return nil
}

// Phase durations must stay below half the uint32 tick range so modular
// differences can tell a late tick from a clock that stepped backward.
const maxPhaseMillis = uint32(1<<31 - 1)

func (c Config) phaseMillis(s State) uint32 {
	switch s {
	case StateActuate:
		return uint32(c.ActuateDuration.Milliseconds())
	case StateDecay:
		return uint32(c.DecayDuration.Milliseconds())
	default:
		return uint32(c.SampleDuration.Milliseconds())
	}
}
