//go:build linux

package spi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal Linux SPI implementation backed by /dev/spidevB.C.
//
// Each Tx is one full-duplex SPI_IOC_MESSAGE(1) transfer with chip select
// held for the whole transfer, which is what register reads need.

const (
	spiIocWrMode        = 0x40016B01
	spiIocWrBitsPerWord = 0x40016B03
	spiIocWrMaxSpeedHz  = 0x40046B04
	spiIocMessage1      = 0x40206B00
)

// ioc mirrors struct spi_ioc_transfer (32 bytes).
type ioc struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Dev is an opened spidev node. Not safe for concurrent transfers.
//
//nolint:revive // simple device abstraction.
type Dev struct {
	f       *os.File
	path    string
	speedHz uint32
}

func Open(path string, cfg Config) (*Dev, error) {
	cfg = cfg.withDefaults()
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &Dev{f: f, path: path, speedHz: cfg.SpeedHz}

	mode := cfg.Mode
	if err := d.ioctl(spiIocWrMode, unsafe.Pointer(&mode)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi: set mode %d on %s: %w", mode, path, err)
	}
	bits := uint8(8)
	if err := d.ioctl(spiIocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi: set bits per word on %s: %w", path, err)
	}
	speed := cfg.SpeedHz
	if err := d.ioctl(spiIocWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi: set speed %d on %s: %w", speed, path, err)
	}
	return d, nil
}

func (d *Dev) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Tx clocks w out while clocking len(r) bytes in. When both are non-empty
// they must have equal length (full duplex).
func (d *Dev) Tx(w, r []byte) error {
	if d == nil || d.f == nil {
		return errors.New("spi device is nil")
	}
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if n == 0 {
		return nil
	}
	if len(w) > 0 && len(r) > 0 && len(w) != len(r) {
		return fmt.Errorf("spi: tx len %d != rx len %d", len(w), len(r))
	}

	xfer := ioc{length: uint32(n), speedHz: d.speedHz, bitsPerWord: 8}
	if len(w) > 0 {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if len(r) > 0 {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	return d.ioctl(spiIocMessage1, unsafe.Pointer(&xfer))
}

func (d *Dev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
