package chain

import (
	"sync"
	"time"
)

// Clock supplies block timestamps in unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads wall time.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// ManualClock is a clock moved explicitly, for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts a clock at now.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by seconds and returns the new time.
func (c *ManualClock) Advance(seconds int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}
