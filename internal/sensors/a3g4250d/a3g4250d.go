package a3g4250d

import (
	"fmt"
	"time"

	"tsat-adcs/internal/spi"
)

// Minimal A3G4250D gyroscope driver over SPI.
//
// The detumble loop does not use it; it reports body rate so operators can
// watch the tumble decay.

const (
	regWhoAmI = 0x0F
	whoAmIVal = 0xD3
	regCtrl1  = 0x20
	regOutXL  = 0x28 // X_L, X_H, Y_L, Y_H, Z_L, Z_H

	// Power on, X/Y/Z enabled, 100 Hz ODR.
	ctrl1Normal100Hz = 0x0F

	readFlag    = 0x80
	autoIncFlag = 0x40

	// DPSPerDigit is the fixed 245 dps full-scale sensitivity.
	DPSPerDigit = 0.00875
)

type Sample struct {
	Time time.Time
	Raw  [3]int16
	// Rate in deg/s.
	Gx, Gy, Gz float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO
}

func New(dev *spi.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("a3g4250d: dev is nil")
	}
	return newWithIO(spi.Regs{Bus: dev, ReadFlag: readFlag, AutoIncFlag: autoIncFlag})
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("a3g4250d: dev is nil")
	}
	who, err := dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("a3g4250d: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("a3g4250d: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}
	if err := dev.WriteReg(regCtrl1, ctrl1Normal100Hz); err != nil {
		return nil, fmt.Errorf("a3g4250d: ctrl_reg1 write failed: %w", err)
	}
	return &Device{dev: dev}, nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("a3g4250d: device is nil")
	}
	var buf [6]byte
	if err := d.dev.ReadReg(regOutXL, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("a3g4250d: read rates failed: %w", err)
	}
	// Little endian, low byte first.
	var raw [3]int16
	for i := 0; i < 3; i++ {
		raw[i] = int16(uint16(buf[2*i+1])<<8 | uint16(buf[2*i]))
	}
	return Sample{
		Time: time.Now(),
		Raw:  raw,
		Gx:   float64(raw[0]) * DPSPerDigit,
		Gy:   float64(raw[1]) * DPSPerDigit,
		Gz:   float64(raw[2]) * DPSPerDigit,
	}, nil
}

// ReadRateDPS returns the body rate in degrees per second.
func (d *Device) ReadRateDPS() ([3]float64, error) {
	s, err := d.Read()
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{s.Gx, s.Gy, s.Gz}, nil
}
