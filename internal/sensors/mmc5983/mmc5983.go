package mmc5983

import (
	"fmt"
	"time"

	"tsat-adcs/internal/spi"
)

var sleep = time.Sleep

// Minimal MMC5983MA driver over SPI.
//
// Focus: probe + single-shot magnetic reads in 16-bit mode for detumbling.
// Reads set bit 7 of the address byte; the part does not need an
// auto-increment flag.

const (
	regXout0    = 0x00 // X[17:10]; X[9:2] follows, then Y and Z pairs
	regStatus   = 0x08
	regControl0 = 0x09
	regControl1 = 0x0A
	regProdID   = 0x2F

	prodIDVal = 0x30

	bitMeasMDone = 0x01
	bitTMM       = 0x01
	bitSWReset   = 0x80

	// 16-bit output is offset binary around zero field.
	nullField = 32768

	// CountsPerGauss is the 16-bit mode sensitivity.
	CountsPerGauss = 4096.0
	gaussPerTesla  = 10000.0

	measPollAttempts = 20
	measPollInterval = time.Millisecond
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO
}

func New(dev *spi.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mmc5983: dev is nil")
	}
	return newWithIO(spi.Regs{Bus: dev, ReadFlag: 0x80})
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mmc5983: dev is nil")
	}
	d := &Device{dev: dev}

	// Software reset first; the part needs ~10ms before registers are valid.
	if err := d.dev.WriteReg(regControl1, bitSWReset); err != nil {
		return nil, fmt.Errorf("mmc5983: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	id, err := d.dev.ReadRegU8(regProdID)
	if err != nil {
		return nil, fmt.Errorf("mmc5983: product id read failed: %w", err)
	}
	if id != prodIDVal {
		return nil, fmt.Errorf("mmc5983: product id=0x%02X want 0x%02X", id, prodIDVal)
	}
	return d, nil
}

// ReadRaw triggers one measurement and returns signed counts (zero field is
// zero) for X, Y, Z.
func (d *Device) ReadRaw() ([3]int16, error) {
	if d == nil {
		return [3]int16{}, fmt.Errorf("mmc5983: device is nil")
	}
	if err := d.dev.WriteReg(regControl0, bitTMM); err != nil {
		return [3]int16{}, fmt.Errorf("mmc5983: trigger failed: %w", err)
	}

	done := false
	for i := 0; i < measPollAttempts; i++ {
		st, err := d.dev.ReadRegU8(regStatus)
		if err != nil {
			return [3]int16{}, fmt.Errorf("mmc5983: status read failed: %w", err)
		}
		if st&bitMeasMDone != 0 {
			done = true
			break
		}
		sleep(measPollInterval)
	}
	if !done {
		return [3]int16{}, fmt.Errorf("mmc5983: measurement not ready after %d polls", measPollAttempts)
	}

	var buf [6]byte
	for i := range buf {
		b, err := d.dev.ReadRegU8(regXout0 + byte(i))
		if err != nil {
			return [3]int16{}, fmt.Errorf("mmc5983: read out%d failed: %w", i, err)
		}
		buf[i] = b
	}

	var out [3]int16
	for i := 0; i < 3; i++ {
		u := uint16(buf[2*i])<<8 | uint16(buf[2*i+1])
		out[i] = int16(int32(u) - nullField)
	}
	return out, nil
}

// CountsToTesla converts signed 16-bit counts to Tesla.
func (d *Device) CountsToTesla(raw [3]int16) [3]float64 {
	return CountsToTesla(raw)
}

// CountsToTesla converts signed 16-bit counts to Tesla
// (4096 counts per gauss, 10 000 gauss per tesla).
func CountsToTesla(raw [3]int16) [3]float64 {
	const scale = 1.0 / (CountsPerGauss * gaussPerTesla)
	return [3]float64{
		float64(raw[0]) * scale,
		float64(raw[1]) * scale,
		float64(raw[2]) * scale,
	}
}

// TeslaToCounts is the inverse of CountsToTesla, rounded and clamped to the
// int16 range.
func TeslaToCounts(b [3]float64) [3]int16 {
	var out [3]int16
	for i, v := range b {
		c := v * CountsPerGauss * gaussPerTesla
		switch {
		case c >= 32767:
			out[i] = 32767
		case c <= -32768:
			out[i] = -32768
		case c >= 0:
			out[i] = int16(c + 0.5)
		default:
			out[i] = int16(c - 0.5)
		}
	}
	return out
}
