package telemetry

import (
	"fmt"
	"io"
	"math"

	"tsat-adcs/internal/detumble"
)

type Summary struct {
	Segments    int
	Records     int
	Cycles      int
	StateCounts map[detumble.State]int
	// DurationMs is the longest span between the first and last record of a
	// segment.
	DurationMs   uint32
	FirstRateDPS float64
	LastRateDPS  float64
	PeakMoment   float64
}

// Summarize counts records per state and completed decay->sample cycles.
func Summarize(records []Record) Summary {
	s := Summary{StateCounts: map[detumble.State]int{}}

	var (
		haveFirst bool
		segFirst  uint32
		prev      detumble.State
		havePrev  bool
	)
	for _, r := range records {
		if r.Start {
			s.Segments++
			havePrev = false
			continue
		}
		if s.Segments == 0 {
			s.Segments = 1
		}
		s.Records++
		s.StateCounts[r.State]++
		if !havePrev {
			segFirst = r.AtMs
		}
		if d := r.AtMs - segFirst; d > s.DurationMs && int32(d) > 0 {
			s.DurationMs = d
		}
		if havePrev && prev == detumble.StateDecay && r.State == detumble.StateSample {
			s.Cycles++
		}
		prev, havePrev = r.State, true

		if !haveFirst {
			s.FirstRateDPS = r.RateDPS
			haveFirst = true
		}
		s.LastRateDPS = r.RateDPS
		for _, m := range r.Moment {
			if a := math.Abs(m); a > s.PeakMoment {
				s.PeakMoment = a
			}
		}
	}
	return s
}

func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "records: %d\n", s.Records)
	fmt.Fprintf(w, "cycles: %d\n", s.Cycles)
	fmt.Fprintf(w, "duration: %.1fs\n", float64(s.DurationMs)/1000)
	for _, st := range []detumble.State{detumble.StateSample, detumble.StateActuate, detumble.StateDecay} {
		fmt.Fprintf(w, "state %s: %d\n", st, s.StateCounts[st])
	}
	fmt.Fprintf(w, "rate: %.3f -> %.3f deg/s\n", s.FirstRateDPS, s.LastRateDPS)
	fmt.Fprintf(w, "peak |m|: %.4g\n", s.PeakMoment)
}
