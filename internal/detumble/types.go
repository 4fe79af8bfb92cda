// Package detumble implements B-dot magnetic detumbling: a field low-pass
// filter, the B-dot dipole estimator and the three-phase
// sample/actuate/decay scheduler that drives the magnetorquers.
//
// The package never touches hardware directly. Sensors, actuators and the
// millisecond tick source are supplied by the caller through the interfaces
// below, so the same controller runs against real SPI/GPIO drivers and
// against the simulator.
package detumble

import "fmt"

// Axis identifies one magnetorquer / magnetometer axis (1..3).
type Axis int

const (
	AxisX Axis = iota + 1
	AxisY
	AxisZ
)

// Axes lists the three axes in command order.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Direction is the drive direction of a magnetorquer coil.
type Direction int

const (
	Off Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Off:
		return "off"
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Power is the coil drive strength. Detumbling is bang-bang, so only full
// power is ever commanded.
type Power int

const (
	PowerFull Power = iota
)

// State is the scheduler phase.
type State int

const (
	StateSample State = iota
	StateActuate
	StateDecay
)

func (s State) String() string {
	switch s {
	case StateSample:
		return "sample"
	case StateActuate:
		return "actuate"
	case StateDecay:
		return "decay"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "sample":
		return StateSample, nil
	case "actuate":
		return StateActuate, nil
	case "decay":
		return StateDecay, nil
	default:
		return 0, fmt.Errorf("detumble: unknown state %q", s)
	}
}

// Magnetometer is the field sensor adapter.
type Magnetometer interface {
	// ReadRaw returns signed raw counts for X, Y, Z.
	ReadRaw() ([3]int16, error)
	// CountsToTesla converts raw counts with the sensor's fixed scale.
	CountsToTesla(raw [3]int16) [3]float64
}

// Actuators drives the three magnetorquer axes.
type Actuators interface {
	SetAxis(axis Axis, dir Direction, power Power) error
}

// Clock is a monotonically increasing millisecond counter. It may wrap.
type Clock interface {
	NowMillis() uint32
}

// TraceSink receives the filtered field after each Sample-phase update.
// It is a debugging aid; a nil sink disables tracing.
type TraceSink interface {
	TraceField(nowMs uint32, sample FieldSample, filtered [3]float64)
}

// FieldSample is one magnetometer reading.
type FieldSample struct {
	Raw   [3]int16
	Tesla [3]float64
}
