package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock pinned to a chosen UTC instant. With a step set, every
// Now call moves the clock forward, so rows written back to back get distinct
// ordered timestamps.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

// WithStep sets the automatic advance applied after each Now.
func (c *FakeClock) WithStep(step time.Duration) *FakeClock {
	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock by d and returns the new instant.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
