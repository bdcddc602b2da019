package gallery

import (
	"sync"
	"time"
)

// sweepThreshold bounds the cooldown map between discovery cycles
const sweepThreshold = 1024

// cooldown tracks the last accepted metered request per requester
type cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{window: window, last: make(map[string]time.Time)}
}

// Allow checks and records a request atomically. An empty requester is never limited.
func (c *cooldown) Allow(requester string, now time.Time) bool {
	if requester == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.last) > sweepThreshold {
		c.sweepLocked(now)
	}
	if t, ok := c.last[requester]; ok && now.Sub(t) < c.window {
		return false
	}
	c.last[requester] = now
	return true
}

// Sweep drops entries whose window has elapsed and returns how many were removed
func (c *cooldown) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *cooldown) sweepLocked(now time.Time) int {
	removed := 0
	for id, t := range c.last {
		if now.Sub(t) >= c.window {
			delete(c.last, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked requesters
func (c *cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
