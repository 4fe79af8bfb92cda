// Package sim models a tumbling spacecraft with magnetorquers so the detumble
// controller can be exercised without hardware.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/sensors/mmc5983"
)

type Params struct {
	// InitialRate is the body angular rate at t=0 in rad/s.
	InitialRate r3.Vec
	// Inertia is the diagonal of the inertia tensor in kg m^2.
	Inertia r3.Vec
	// Field is the inertial magnetic field at t=0 in Tesla.
	Field r3.Vec
	// OrbitPeriod rotates Field about inertial Y at twice the orbital rate,
	// which is roughly what a dipole field does over a polar orbit. Zero keeps
	// the field fixed.
	OrbitPeriod time.Duration
	// MaxMoment is the dipole of one fully driven torquer in A m^2.
	MaxMoment float64
	// NoiseCounts is the standard deviation of magnetometer noise in counts.
	NoiseCounts float64
	Seed        int64
}

// Spacecraft is a rigid body with a three-axis magnetometer, three
// magnetorquers and a rate gyro. It implements detumble.Magnetometer,
// detumble.Actuators and detumble.Clock on virtual time.
//
// Not safe for concurrent use.
type Spacecraft struct {
	p Params

	omega   r3.Vec
	att     quat.Number // body to inertial
	elapsed time.Duration
	dirs    [3]detumble.Direction
	rng     *rand.Rand
}

func NewSpacecraft(p Params) (*Spacecraft, error) {
	if p.Inertia.X <= 0 || p.Inertia.Y <= 0 || p.Inertia.Z <= 0 {
		return nil, fmt.Errorf("sim: inertia must be positive, got %v", p.Inertia)
	}
	if p.MaxMoment <= 0 {
		return nil, fmt.Errorf("sim: max moment must be positive")
	}
	if p.NoiseCounts < 0 {
		return nil, fmt.Errorf("sim: noise must be >= 0")
	}
	return &Spacecraft{
		p:     p,
		omega: p.InitialRate,
		att:   quat.Number{Real: 1},
		rng:   rand.New(rand.NewSource(p.Seed)),
	}, nil
}

func (s *Spacecraft) NowMillis() uint32 {
	return uint32(s.elapsed.Milliseconds())
}

func (s *Spacecraft) Elapsed() time.Duration { return s.elapsed }

// BodyRate is the angular rate in the body frame, rad/s.
func (s *Spacecraft) BodyRate() r3.Vec { return s.omega }

// RateDPS is |omega| in degrees per second.
func (s *Spacecraft) RateDPS() float64 {
	return r3.Norm(s.omega) * 180 / math.Pi
}

// ReadRateDPS is an ideal gyro.
func (s *Spacecraft) ReadRateDPS() ([3]float64, error) {
	k := 180 / math.Pi
	return [3]float64{s.omega.X * k, s.omega.Y * k, s.omega.Z * k}, nil
}

// InertialField is the field at the current virtual time.
func (s *Spacecraft) InertialField() r3.Vec {
	if s.p.OrbitPeriod <= 0 {
		return s.p.Field
	}
	angle := 4 * math.Pi * s.elapsed.Seconds() / s.p.OrbitPeriod.Seconds()
	return r3.NewRotation(angle, r3.Vec{Y: 1}).Rotate(s.p.Field)
}

// BodyField is the field seen by the body-mounted magnetometer.
func (s *Spacecraft) BodyField() r3.Vec {
	return rotate(quat.Conj(s.att), s.InertialField())
}

func (s *Spacecraft) ReadRaw() ([3]int16, error) {
	b := s.BodyField()
	t := [3]float64{b.X, b.Y, b.Z}
	if s.p.NoiseCounts > 0 {
		perCount := mmc5983.CountsToTesla([3]int16{1, 0, 0})[0]
		for i := range t {
			t[i] += s.rng.NormFloat64() * s.p.NoiseCounts * perCount
		}
	}
	return mmc5983.TeslaToCounts(t), nil
}

func (s *Spacecraft) CountsToTesla(raw [3]int16) [3]float64 {
	return mmc5983.CountsToTesla(raw)
}

func (s *Spacecraft) SetAxis(axis detumble.Axis, dir detumble.Direction, power detumble.Power) error {
	if axis < detumble.AxisX || axis > detumble.AxisZ {
		return fmt.Errorf("sim: invalid axis %d", int(axis))
	}
	if power != detumble.PowerFull {
		return fmt.Errorf("sim: unsupported power %d", int(power))
	}
	s.dirs[axis-1] = dir
	return nil
}

// Moment is the dipole currently produced by the torquers, A m^2.
func (s *Spacecraft) Moment() r3.Vec {
	var m [3]float64
	for i, d := range s.dirs {
		switch d {
		case detumble.Forward:
			m[i] = s.p.MaxMoment
		case detumble.Reverse:
			m[i] = -s.p.MaxMoment
		}
	}
	return r3.Vec{X: m[0], Y: m[1], Z: m[2]}
}

// Step advances the body by dt. The field and dipole are held for the step.
func (s *Spacecraft) Step(dt time.Duration) {
	h := dt.Seconds()
	torque := r3.Cross(s.Moment(), s.BodyField())

	// Euler's equations for a diagonal inertia, RK4.
	f := func(w r3.Vec) r3.Vec {
		I := s.p.Inertia
		Iw := r3.Vec{X: I.X * w.X, Y: I.Y * w.Y, Z: I.Z * w.Z}
		n := r3.Sub(torque, r3.Cross(w, Iw))
		return r3.Vec{X: n.X / I.X, Y: n.Y / I.Y, Z: n.Z / I.Z}
	}
	w0 := s.omega
	k1 := f(w0)
	k2 := f(r3.Add(w0, r3.Scale(h/2, k1)))
	k3 := f(r3.Add(w0, r3.Scale(h/2, k2)))
	k4 := f(r3.Add(w0, r3.Scale(h, k3)))
	sum := r3.Add(r3.Add(k1, r3.Scale(2, k2)), r3.Add(r3.Scale(2, k3), k4))
	w1 := r3.Add(w0, r3.Scale(h/6, sum))

	// Attitude: q <- q * exp(w h / 2) using the mean rate over the step.
	wm := r3.Scale(0.5, r3.Add(w0, w1))
	s.att = unit(quat.Mul(s.att, expRate(wm, h)))
	s.omega = w1
	s.elapsed += dt
}

func expRate(w r3.Vec, h float64) quat.Number {
	n := r3.Norm(w)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	half := n * h / 2
	k := math.Sin(half) / n
	return quat.Number{Real: math.Cos(half), Imag: w.X * k, Jmag: w.Y * k, Kmag: w.Z * k}
}

func unit(q quat.Number) quat.Number {
	return quat.Scale(1/quat.Abs(q), q)
}

// rotate returns q v q*.
func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
