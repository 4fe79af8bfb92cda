package detumble

// UpdateResult classifies a Filter.Update call.
type UpdateResult int

const (
	// UpdateColdStart: first sample, stored unsmoothed, no derivative.
	UpdateColdStart UpdateResult = iota
	// UpdateAccepted: filtered field and derivative advanced.
	UpdateAccepted
	// UpdateSkipped: non-positive delta_t; nothing was mutated.
	UpdateSkipped
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateColdStart:
		return "cold_start"
	case UpdateAccepted:
		return "accepted"
	case UpdateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Filter is a per-axis one-pole exponential smoother that also differentiates
// its output between accepted samples.
//
// Not safe for concurrent use.
type Filter struct {
	alpha float64

	seeded   bool
	filtered [3]float64
	lastMs   uint32

	deriv      [3]float64
	derivValid bool
}

func NewFilter(alpha float64) *Filter {
	return &Filter{alpha: alpha}
}

// Update feeds one raw field sample taken at nowMs.
//
// The elapsed time is the modular uint32 difference read as int32, so a
// forward step across counter wrap is still positive while a clock that
// stepped backward (or a duplicate call) yields dt <= 0 and is skipped.
func (f *Filter) Update(raw [3]float64, nowMs uint32) ([3]float64, [3]float64, UpdateResult) {
	if !f.seeded {
		f.filtered = raw
		f.lastMs = nowMs
		f.seeded = true
		f.deriv = [3]float64{}
		f.derivValid = false
		return f.filtered, [3]float64{}, UpdateColdStart
	}

	dtMs := int32(nowMs - f.lastMs)
	if dtMs <= 0 {
		f.derivValid = false
		return f.filtered, [3]float64{}, UpdateSkipped
	}
	dt := float64(dtMs) / 1000.0

	prev := f.filtered
	var next, deriv [3]float64
	for i := 0; i < 3; i++ {
		next[i] = f.alpha*raw[i] + (1-f.alpha)*prev[i]
		deriv[i] = (next[i] - prev[i]) / dt
	}
	f.filtered = next
	f.lastMs = nowMs
	f.deriv = deriv
	f.derivValid = true
	return next, deriv, UpdateAccepted
}

// Invalidate drops the current derivative without touching the filtered
// field or timestamp. Used when a sensor read fails.
func (f *Filter) Invalidate() {
	f.derivValid = false
}

// Filtered returns the current estimate and whether it has been seeded.
func (f *Filter) Filtered() ([3]float64, bool) {
	return f.filtered, f.seeded
}

// LastMillis returns the timestamp of the last accepted sample.
func (f *Filter) LastMillis() (uint32, bool) {
	return f.lastMs, f.seeded
}

// Derivative returns the derivative produced by the most recent update.
// ok is false after a cold start, a skipped update or Invalidate.
func (f *Filter) Derivative() (d [3]float64, ok bool) {
	return f.deriv, f.derivValid
}
