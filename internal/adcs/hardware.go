package adcs

import (
	"errors"
	"fmt"
	"io"

	"tsat-adcs/internal/config"
	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/sensors/a3g4250d"
	"tsat-adcs/internal/sensors/mmc5983"
	"tsat-adcs/internal/spi"
	"tsat-adcs/internal/torquer"
)

var (
	openSPI      = spi.Open
	openTorquers = torquer.Open
)

// Hardware holds the real sensor and actuator adapters.
type Hardware struct {
	Magnetometer *mmc5983.Device
	// Gyro is nil unless gyro.enable is set.
	Gyro     *a3g4250d.Device
	Torquers *torquer.Driver

	closers []io.Closer
}

// OpenHardware opens the SPI sensors and the torquer GPIO lines described by
// cfg. On error everything opened so far is closed.
func OpenHardware(cfg config.Config) (*Hardware, error) {
	h := &Hardware{}

	magBus, err := openSPI(cfg.Magnetometer.SPIDevice, spi.Config{SpeedHz: cfg.Magnetometer.SpeedHz})
	if err != nil {
		return nil, fmt.Errorf("adcs: open magnetometer bus %s: %w", cfg.Magnetometer.SPIDevice, err)
	}
	h.closers = append(h.closers, magBus)
	if h.Magnetometer, err = mmc5983.New(magBus); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("adcs: %w", err)
	}

	if cfg.Gyro.Enable {
		gyroBus, err := openSPI(cfg.Gyro.SPIDevice, spi.Config{SpeedHz: cfg.Gyro.SpeedHz})
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("adcs: open gyro bus %s: %w", cfg.Gyro.SPIDevice, err)
		}
		h.closers = append(h.closers, gyroBus)
		if h.Gyro, err = a3g4250d.New(gyroBus); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("adcs: %w", err)
		}
	}

	tq, err := openTorquers(TorquerConfig(cfg.Torquers))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("adcs: %w", err)
	}
	h.Torquers = tq
	return h, nil
}

// Close turns the torquers off and releases every device, last opened first.
func (h *Hardware) Close() error {
	if h == nil {
		return nil
	}
	var errs []error
	if h.Torquers != nil {
		errs = append(errs, h.Torquers.Close())
		h.Torquers = nil
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// Deps returns service dependencies backed by h. The gyro is left nil when
// disabled so the service skips rate polling.
func (h *Hardware) Deps() Deps {
	d := Deps{Magnetometer: h.Magnetometer, Actuators: h.Torquers}
	if h.Gyro != nil {
		d.Gyro = h.Gyro
	}
	return d
}

func ControllerConfig(c config.ControllerConfig) detumble.Config {
	out := detumble.Config{
		Alpha:           c.Alpha,
		Gain:            c.Gain,
		SampleDuration:  c.SampleDuration,
		ActuateDuration: c.ActuateDuration,
		DecayDuration:   c.DecayDuration,
	}
	if c.Threshold != nil {
		out.Threshold = *c.Threshold
	}
	return out
}

func ServiceConfig(cfg config.Config) Config {
	return Config{
		Controller:   ControllerConfig(cfg.Controller),
		PollInterval: cfg.Controller.PollInterval,
		GyroInterval: cfg.Gyro.Interval,
	}
}

func TorquerConfig(c config.TorquersConfig) torquer.Config {
	axis := func(l config.AxisLinesConfig) torquer.AxisLines {
		return torquer.AxisLines{In1: l.In1, In2: l.In2, Enable: l.Enable}
	}
	return torquer.Config{
		Chip:     c.Chip,
		Consumer: c.Consumer,
		Axes:     [3]torquer.AxisLines{axis(c.X), axis(c.Y), axis(c.Z)},
	}
}
