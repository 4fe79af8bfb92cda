package detumble

// Estimate applies the B-dot law: moment = -gain * dB/dt per axis.
func Estimate(gain float64, derivative [3]float64) [3]float64 {
	return [3]float64{
		-gain * derivative[0],
		-gain * derivative[1],
		-gain * derivative[2],
	}
}

// CommandFor maps one moment component to a bang-bang drive direction with a
// symmetric strict dead band: |m| <= threshold is Off.
func CommandFor(m, threshold float64) Direction {
	switch {
	case m > threshold:
		return Forward
	case m < -threshold:
		return Reverse
	default:
		return Off
	}
}

// Commands maps a full moment vector to per-axis directions.
func Commands(moment [3]float64, threshold float64) [3]Direction {
	return [3]Direction{
		CommandFor(moment[0], threshold),
		CommandFor(moment[1], threshold),
		CommandFor(moment[2], threshold),
	}
}
