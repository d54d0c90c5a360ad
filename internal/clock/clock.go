// Package clock provides the millisecond timestamps stores stamp writes
// with.
//
// LastModified is the only ordering key for conflict resolution, so the
// clock must never go backwards and never return the same value twice, even
// when the wall clock is adjusted or several writes land in one millisecond.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns unix-millisecond timestamps.
type Clock interface {
	Now() int64
}

// Monotonic is a wall clock that is strictly increasing across calls.
//
// Thread-safety: Monotonic is safe for concurrent use (atomic operations).
type Monotonic struct {
	last atomic.Int64
	wall func() time.Time
}

// NewMonotonic creates a clock backed by time.Now.
func NewMonotonic() *Monotonic {
	return &Monotonic{wall: time.Now}
}

// Now returns max(wall clock, previous+1).
func (c *Monotonic) Now() int64 {
	for {
		last := c.last.Load()
		now := c.wall().UnixMilli()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Observe folds in a timestamp seen elsewhere, so the next Now is strictly
// greater than ts.
func (c *Monotonic) Observe(ts int64) {
	for {
		last := c.last.Load()
		if ts <= last || c.last.CompareAndSwap(last, ts) {
			return
		}
	}
}

// After returns a timestamp for a new state replacing one stamped prev:
// the clock's next value, but never less than prev+1.
func After(c Clock, prev int64) int64 {
	now := c.Now()
	if now <= prev {
		return prev + 1
	}
	return now
}
