package torquer

import (
	"errors"
	"fmt"

	"tsat-adcs/internal/detumble"
)

// AxisLines are the GPIO line offsets of one H-bridge channel.
type AxisLines struct {
	In1    int
	In2    int
	Enable int
}

type Config struct {
	// Chip is the GPIO character device, e.g. "gpiochip0".
	Chip     string
	Consumer string
	// Axes are the X, Y, Z channels in that order.
	Axes [3]AxisLines
}

// lineSetter drives one axis' [in1, in2, enable] lines together.
//
// Close should be best-effort and leave the lines released.
type lineSetter interface {
	SetValues(values []int) error
	Close() error
}

var openLinesFn = openLines

// Driver commands three magnetorquer H-bridges. It satisfies
// detumble.Actuators.
//
// Not safe for concurrent use.
type Driver struct {
	axes [3]lineSetter
	last [3]detumble.Direction
}

func Open(cfg Config) (*Driver, error) {
	if cfg.Chip == "" {
		return nil, errors.New("torquer: chip is required")
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "tsat-adcs-torquer"
	}
	seen := map[int]bool{}
	for i, a := range cfg.Axes {
		for _, off := range []int{a.In1, a.In2, a.Enable} {
			if off < 0 {
				return nil, fmt.Errorf("torquer: axis %s: invalid line offset %d", detumble.Axes[i], off)
			}
			if seen[off] {
				return nil, fmt.Errorf("torquer: line offset %d used twice", off)
			}
			seen[off] = true
		}
	}

	d := &Driver{}
	for i, a := range cfg.Axes {
		ls, err := openLinesFn(cfg.Chip, []int{a.In1, a.In2, a.Enable}, cfg.Consumer)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("torquer: axis %s: %w", detumble.Axes[i], err)
		}
		d.axes[i] = ls
	}
	return d, nil
}

// levels returns [in1, in2, enable] for a direction.
func levels(dir detumble.Direction) ([]int, error) {
	switch dir {
	case detumble.Off:
		return []int{0, 0, 0}, nil
	case detumble.Forward:
		return []int{1, 0, 1}, nil
	case detumble.Reverse:
		return []int{0, 1, 1}, nil
	default:
		return nil, fmt.Errorf("torquer: unknown direction %v", dir)
	}
}

func (d *Driver) SetAxis(axis detumble.Axis, dir detumble.Direction, power detumble.Power) error {
	if d == nil {
		return errors.New("torquer: driver is nil")
	}
	if axis < detumble.AxisX || axis > detumble.AxisZ {
		return fmt.Errorf("torquer: invalid axis %d", int(axis))
	}
	if power != detumble.PowerFull {
		return fmt.Errorf("torquer: unsupported power %d", int(power))
	}
	ls := d.axes[axis-1]
	if ls == nil {
		return fmt.Errorf("torquer: axis %s not open", axis)
	}
	v, err := levels(dir)
	if err != nil {
		return err
	}
	if err := ls.SetValues(v); err != nil {
		return err
	}
	d.last[axis-1] = dir
	return nil
}

// Directions returns the last successfully applied directions.
func (d *Driver) Directions() [3]detumble.Direction {
	return d.last
}

// Close turns every coil off, then releases the lines.
func (d *Driver) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i, ls := range d.axes {
		if ls == nil {
			continue
		}
		if err := ls.SetValues([]int{0, 0, 0}); err != nil {
			errs = append(errs, err)
		}
		if err := ls.Close(); err != nil {
			errs = append(errs, err)
		}
		d.axes[i] = nil
	}
	return errors.Join(errs...)
}
