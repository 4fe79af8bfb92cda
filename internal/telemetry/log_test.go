package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tsat-adcs/internal/detumble"
)

func TestReader_ParsesAndSkipsComments(t *testing.T) {
	in := strings.Join([]string{
		"# comment",
		"",
		"START",
		"100,actuate,1e-05,-2e-05,4.5e-05,0.5,-0.25,0,8.1",
		" 1300 , decay ,0,0,0,0,0,0,8.0 ",
	}, "\n")
	recs, err := NewReader(strings.NewReader(in)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 3 || !recs[0].Start {
		t.Fatalf("recs=%+v", recs)
	}
	r := recs[1]
	if r.AtMs != 100 || r.State != detumble.StateActuate || r.Field[2] != 4.5e-05 || r.Moment[1] != -0.25 || r.RateDPS != 8.1 {
		t.Fatalf("rec=%+v", r)
	}
	if recs[2].State != detumble.StateDecay {
		t.Fatalf("state=%v", recs[2].State)
	}
}

func TestReader_Errors(t *testing.T) {
	cases := []string{
		"100,actuate,1,2,3",
		"-5,actuate,0,0,0,0,0,0,0",
		"5,spin,0,0,0,0,0,0,0",
		"5,decay,0,0,x,0,0,0,0",
	}
	for _, in := range cases {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestWriter_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	want := Record{AtMs: 1400, State: detumble.StateSample, Field: [3]float64{1.5e-5, 0, -3e-5}, Moment: [3]float64{0.2, 0, -0.2}, RateDPS: 7.25}
	if err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(want); err == nil {
		t.Fatalf("expected error after Close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("START\n# t_ms,")) {
		t.Fatalf("file=%q", b)
	}
	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 2 || recs[1] != want {
		t.Fatalf("recs=%+v want %+v", recs, want)
	}
}
