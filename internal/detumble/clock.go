package detumble

import "time"

// MonotonicClock counts milliseconds since it was created using the
// runtime's monotonic clock. The counter wraps after ~49.7 days, like a
// 32-bit system tick.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is a settable tick source for tests and simulation.
type ManualClock struct {
	Ms uint32
}

func (c *ManualClock) NowMillis() uint32 { return c.Ms }

// Advance moves the clock forward by d (truncated to milliseconds).
func (c *ManualClock) Advance(d time.Duration) {
	c.Ms += uint32(d.Milliseconds())
}
