package trace

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/logging"
)

var sample = detumble.FieldSample{
	Raw:   [3]int16{4096, -2048, 0},
	Tesla: [3]float64{1e-4, -5e-5, 0},
}

func TestLine(t *testing.T) {
	got := Line([3]float64{1e-4, -5e-5, 0})
	want := "[S1] B-field X: 0.000100000 Y: -0.000050000 Z: 0.000000000 (T)"
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestWriterSink_PrintsFilteredField(t *testing.T) {
	var buf bytes.Buffer
	raw := detumble.FieldSample{Tesla: [3]float64{1, 1, 1}}
	NewWriterSink(&buf).TraceField(0, raw, [3]float64{0.2, 0.2, 0.2})
	want := "[S1] B-field X: 0.200000000 Y: 0.200000000 Z: 0.200000000 (T)\r\n"
	if got := buf.String(); got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestWriterSink_CRLF(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	s.TraceField(10, sample, [3]float64{})
	s.TraceField(20, sample, [3]float64{})
	lines := strings.Split(buf.String(), "\r\n")
	if len(lines) != 3 || lines[2] != "" {
		t.Fatalf("lines=%q", lines)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("tx full") }

func TestWriterSink_CountsErrors(t *testing.T) {
	s := NewWriterSink(failWriter{})
	s.TraceField(1, sample, [3]float64{})
	s.TraceField(2, sample, [3]float64{})
	if got := s.WriteErrors(); got != 2 {
		t.Fatalf("errors=%d want 2", got)
	}
}

func TestLogSink_Debug(t *testing.T) {
	var buf bytes.Buffer
	LogSink{Log: logging.NewWithWriter(&buf, slog.LevelDebug)}.TraceField(42, sample, [3]float64{1, 2, 3})
	out := buf.String()
	if !strings.Contains(out, "t_ms=42") {
		t.Fatalf("output=%q", out)
	}
	if !strings.Contains(out, "X: 1.000000000 Y: 2.000000000 Z: 3.000000000") {
		t.Fatalf("message should carry the filtered field: %q", out)
	}
	// Nil logger is a no-op.
	LogSink{}.TraceField(1, sample, [3]float64{})
}

type fakePort struct {
	bytes.Buffer
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestOpenSerial(t *testing.T) {
	fp := &fakePort{}
	var gotName string
	var gotBaud int
	old := openPort
	openPort = func(name string, baud int) (port, error) {
		gotName, gotBaud = name, baud
		return fp, nil
	}
	t.Cleanup(func() { openPort = old })

	s, err := OpenSerial("/dev/ttyAMA0", 0)
	if err != nil {
		t.Fatalf("OpenSerial: %v", err)
	}
	if gotName != "/dev/ttyAMA0" || gotBaud != 115200 {
		t.Fatalf("name=%q baud=%d", gotName, gotBaud)
	}
	s.TraceField(5, sample, [3]float64{})
	if !strings.HasPrefix(fp.String(), "[S1] B-field X:") {
		t.Fatalf("port got %q", fp.String())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fp.closed {
		t.Fatalf("port not closed")
	}
	// Writes after close are dropped.
	s.TraceField(6, sample, [3]float64{})
	if strings.Count(fp.String(), "\r\n") != 1 {
		t.Fatalf("write after close: %q", fp.String())
	}
}

func TestOpenSerial_Error(t *testing.T) {
	old := openPort
	openPort = func(name string, baud int) (port, error) { return nil, errors.New("no such device") }
	t.Cleanup(func() { openPort = old })
	if _, err := OpenSerial("/dev/none", 9600); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := OpenSerial("", 9600); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	Multi{NewWriterSink(&a), nil, NewWriterSink(&b)}.TraceField(1, sample, [3]float64{})
	if a.Len() == 0 || b.Len() == 0 {
		t.Fatalf("fan-out missed a sink")
	}
}
