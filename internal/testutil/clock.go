// Package testutil provides deterministic stand-ins for the clock and name
// generator, so test scenarios produce identical timestamps and names on
// every run.
package testutil

import "sync"

// DefaultEpoch is the first timestamp a DeterministicClock returns,
// 2024-01-01T00:00:00Z in unix milliseconds.
const DefaultEpoch int64 = 1704067200000

// DeterministicClock is a millisecond clock that advances by one on every
// call to Now.
//
// Unlike clock.Monotonic, DeterministicClock can be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first Now returns epoch.
// A zero epoch means DefaultEpoch.
func NewDeterministicClock(epoch int64) *DeterministicClock {
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &DeterministicClock{epoch: epoch}
}

// Now returns the next timestamp.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.epoch + c.ticks
	c.ticks++
	return ts
}

// Current returns the last timestamp handed out, or epoch-1 before the
// first call.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.ticks - 1
}

// Advance skips the clock forward by ms.
func (c *DeterministicClock) Advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks += ms
}

// Reset rewinds the clock so the next Now returns epoch again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
