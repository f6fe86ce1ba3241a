package clock

import "time"

// FakeClock pins Now to a chosen instant so window defaults in readers are
// assertable. Not safe for concurrent Advance.
type FakeClock struct {
	current time.Time
}

func NewFakeClock(at time.Time) *FakeClock {
	return &FakeClock{current: at.UTC()}
}

func (c *FakeClock) Now() time.Time { return c.current }

// Advance moves the fake instant forward (or back, with a negative d).
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
