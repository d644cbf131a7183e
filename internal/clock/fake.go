package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Time is held in UTC and
// only moves when Advance is called, so trailing-window and daily-boundary
// behaviour can be driven deterministically. Safe for concurrent readers.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
