package detumble

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFilter_ColdStartSeedsRaw(t *testing.T) {
	f := NewFilter(0.2)
	raw := [3]float64{3e-5, -1e-5, 4.2e-5}
	got, _, res := f.Update(raw, 500)
	if res != UpdateColdStart {
		t.Fatalf("res=%v want cold_start", res)
	}
	if got != raw {
		t.Fatalf("filtered=%v want %v", got, raw)
	}
	if _, ok := f.Derivative(); ok {
		t.Fatalf("expected no derivative after cold start")
	}
	if ms, ok := f.LastMillis(); !ok || ms != 500 {
		t.Fatalf("last=%d ok=%v want 500 true", ms, ok)
	}
}

func TestFilter_ColdStartAtTickZero(t *testing.T) {
	// Tick 0 is a valid timestamp, not a "no prior sample" sentinel.
	f := NewFilter(0.2)
	f.Update([3]float64{0, 0, 0}, 0)
	_, _, res := f.Update([3]float64{1, 1, 1}, 10)
	if res != UpdateAccepted {
		t.Fatalf("res=%v want accepted", res)
	}
}

func TestFilter_SecondUpdateBlends(t *testing.T) {
	f := NewFilter(0.2)
	f.Update([3]float64{0, 0, 0}, 0)
	got, deriv, res := f.Update([3]float64{1, 1, 1}, 100)
	if res != UpdateAccepted {
		t.Fatalf("res=%v want accepted", res)
	}
	for i := 0; i < 3; i++ {
		if !near(got[i], 0.2) {
			t.Fatalf("filtered[%d]=%v want 0.2", i, got[i])
		}
		// (0.2 - 0) / 0.1s
		if !near(deriv[i], 2.0) {
			t.Fatalf("deriv[%d]=%v want 2.0", i, deriv[i])
		}
	}
	d, ok := f.Derivative()
	if !ok || d != deriv {
		t.Fatalf("Derivative()=%v,%v want %v,true", d, ok, deriv)
	}
}

func TestFilter_NonPositiveDeltaLeavesStateUntouched(t *testing.T) {
	for _, tc := range []struct {
		name string
		now  uint32
	}{
		{"Duplicate", 200},
		{"Backward", 150},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFilter(0.2)
			f.Update([3]float64{0, 0, 0}, 100)
			before, _, _ := f.Update([3]float64{1, 2, 3}, 200)

			got, _, res := f.Update([3]float64{9, 9, 9}, tc.now)
			if res != UpdateSkipped {
				t.Fatalf("res=%v want skipped", res)
			}
			if got != before {
				t.Fatalf("filtered=%v want unchanged %v", got, before)
			}
			if cur, _ := f.Filtered(); cur != before {
				t.Fatalf("stored=%v want unchanged %v", cur, before)
			}
			if ms, _ := f.LastMillis(); ms != 200 {
				t.Fatalf("last=%d want 200", ms)
			}
			if _, ok := f.Derivative(); ok {
				t.Fatalf("expected derivative invalid after skip")
			}
		})
	}
}

func TestFilter_ForwardStepAcrossCounterWrap(t *testing.T) {
	f := NewFilter(0.5)
	start := uint32(math.MaxUint32 - 49)
	f.Update([3]float64{0, 0, 0}, start)
	_, deriv, res := f.Update([3]float64{1, 0, 0}, start+100) // wraps to 50
	if res != UpdateAccepted {
		t.Fatalf("res=%v want accepted", res)
	}
	// 0.5 over 0.1s.
	if !near(deriv[0], 5.0) {
		t.Fatalf("deriv=%v want 5", deriv[0])
	}
}

func TestFilter_InvalidateKeepsEstimate(t *testing.T) {
	f := NewFilter(0.2)
	f.Update([3]float64{0, 0, 0}, 0)
	want, _, _ := f.Update([3]float64{1, 1, 1}, 10)
	f.Invalidate()
	if _, ok := f.Derivative(); ok {
		t.Fatalf("expected derivative invalid")
	}
	if got, _ := f.Filtered(); got != want {
		t.Fatalf("filtered=%v want %v", got, want)
	}
}
