// Package telemetry reads and writes detumble run logs.
package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tsat-adcs/internal/detumble"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" begins a new run segment.
// - Data lines are: <t_ms>,<state>,<bx>,<by>,<bz>,<mx>,<my>,<mz>,<rate_dps>
//   t_ms is the controller millisecond tick, state is sample|actuate|decay,
//   b is the filtered field in Tesla, m the last dipole estimate and
//   rate_dps the body rate magnitude in degrees per second.

const header = "# t_ms,state,bx,by,bz,mx,my,mz,rate_dps"

type Record struct {
	// Start marks a START line; other fields are zero.
	Start   bool
	AtMs    uint32
	State   detumble.State
	Field   [3]float64
	Moment  [3]float64
	RateDPS float64
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	recs := make([]Record, 0, 1024)
	n := 0
	for s.Scan() {
		n++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("telemetry: line %d: %w", n, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 9 {
		return Record{}, fmt.Errorf("want 9 fields, got %d: %q", len(fields), line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	t, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	st, err := detumble.ParseState(fields[1])
	if err != nil {
		return Record{}, err
	}
	var v [7]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid value %q: %w", fields[2+i], err)
		}
	}
	return Record{
		AtMs:    uint32(t),
		State:   st,
		Field:   [3]float64{v[0], v[1], v[2]},
		Moment:  [3]float64{v[3], v[4], v[5]},
		RateDPS: v[6],
	}, nil
}

type Writer struct {
	f      io.Closer
	w      *bufio.Writer
	closed bool
}

// NewWriter writes a START marker and header to w. If w is an io.Closer it
// is closed by Close.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString("START\n" + header + "\n"); err != nil {
		return nil, err
	}
	ww := &Writer{w: bw}
	if c, ok := w.(io.Closer); ok {
		ww.f = c
	}
	return ww, nil
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

func (ww *Writer) Write(r Record) error {
	if ww.closed {
		return errors.New("telemetry writer is closed")
	}
	if r.Start {
		_, err := ww.w.WriteString("START\n")
		return err
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s,%.9g,%.9g,%.9g,%.6g,%.6g,%.6g,%.4f\n",
		r.AtMs, r.State,
		r.Field[0], r.Field[1], r.Field[2],
		r.Moment[0], r.Moment[1], r.Moment[2],
		r.RateDPS,
	)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	err := ww.w.Flush()
	if ww.f != nil {
		if cerr := ww.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
