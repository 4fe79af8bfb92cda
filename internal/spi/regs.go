package spi

import "fmt"

// Config selects the bus parameters applied at Open.
type Config struct {
	// Mode is the SPI mode (CPOL/CPHA), 0..3.
	Mode uint8
	// SpeedHz is the maximum clock rate.
	SpeedHz uint32
}

func (c Config) withDefaults() Config {
	if c.SpeedHz == 0 {
		c.SpeedHz = 1_000_000
	}
	return c
}

// Transferer performs one chip-select-framed full-duplex transfer.
type Transferer interface {
	Tx(w, r []byte) error
}

// Regs implements register access for sensors that put a read flag (and
// optionally an address auto-increment flag) in the first byte.
type Regs struct {
	Bus Transferer
	// ReadFlag is ORed into the address for reads (0x80 on most ST and
	// MEMSIC parts).
	ReadFlag byte
	// AutoIncFlag is ORed into the address for multi-byte reads, 0 if the
	// part auto-increments on its own.
	AutoIncFlag byte
}

func (r Regs) ReadReg(reg byte, dst []byte) error {
	if r.Bus == nil {
		return fmt.Errorf("spi: bus is nil")
	}
	if len(dst) == 0 {
		return nil
	}
	addr := reg | r.ReadFlag
	if len(dst) > 1 {
		addr |= r.AutoIncFlag
	}
	w := make([]byte, len(dst)+1)
	rd := make([]byte, len(dst)+1)
	w[0] = addr
	if err := r.Bus.Tx(w, rd); err != nil {
		return fmt.Errorf("spi: read reg 0x%02X: %w", reg, err)
	}
	copy(dst, rd[1:])
	return nil
}

func (r Regs) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := r.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r Regs) WriteReg(reg, value byte) error {
	if r.Bus == nil {
		return fmt.Errorf("spi: bus is nil")
	}
	if err := r.Bus.Tx([]byte{reg &^ r.ReadFlag, value}, nil); err != nil {
		return fmt.Errorf("spi: write reg 0x%02X: %w", reg, err)
	}
	return nil
}
