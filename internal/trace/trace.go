// Package trace renders per-sample magnetic field trace lines for the
// detumble controller.
package trace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"tsat-adcs/internal/detumble"
)

// Line formats the filtered field in Tesla as a single console line, without
// a line terminator.
func Line(filtered [3]float64) string {
	return fmt.Sprintf("[S1] B-field X: %.9f Y: %.9f Z: %.9f (T)",
		filtered[0], filtered[1], filtered[2])
}

// LogSink emits trace lines through a structured logger at debug level.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) TraceField(nowMs uint32, sample detumble.FieldSample, filtered [3]float64) {
	if s.Log == nil {
		return
	}
	s.Log.Debug(Line(filtered),
		"t_ms", nowMs,
		"raw", sample.Raw,
		"tesla", sample.Tesla,
	)
}

// WriterSink writes CRLF terminated trace lines to w. Write errors are
// counted, not returned, so tracing never blocks the control loop.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	errors uint64
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) TraceField(nowMs uint32, sample detumble.FieldSample, filtered [3]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if _, err := io.WriteString(s.w, Line(filtered)+"\r\n"); err != nil {
		s.errors++
	}
}

// WriteErrors reports how many trace lines failed to write.
func (s *WriterSink) WriteErrors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

type port interface {
	io.Writer
	Close() error
}

var openPort = func(name string, baud int) (port, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// SerialSink writes trace lines to a UART.
type SerialSink struct {
	*WriterSink
	p port
}

func OpenSerial(name string, baud int) (*SerialSink, error) {
	if name == "" {
		return nil, errors.New("trace: serial port is required")
	}
	if baud <= 0 {
		baud = 115200
	}
	p, err := openPort(name, baud)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", name, err)
	}
	return &SerialSink{WriterSink: NewWriterSink(p), p: p}, nil
}

func (s *SerialSink) Close() error {
	if s == nil || s.p == nil {
		return nil
	}
	s.WriterSink.mu.Lock()
	s.WriterSink.w = nil
	s.WriterSink.mu.Unlock()
	err := s.p.Close()
	s.p = nil
	return err
}

// Multi fans a trace out to several sinks.
type Multi []detumble.TraceSink

func (m Multi) TraceField(nowMs uint32, sample detumble.FieldSample, filtered [3]float64) {
	for _, s := range m {
		if s != nil {
			s.TraceField(nowMs, sample, filtered)
		}
	}
}
