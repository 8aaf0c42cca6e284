package shared

import (
	"sync"
	"time"
)

// Clock hands out timestamps that never go backwards within a process,
// even if the wall clock is stepped.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the wall clock time, without the monotonic guarantee.
func (c *Clock) Now() time.Time { return c.now().UTC() }

// Next returns a timestamp >= every timestamp previously returned by Next.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
