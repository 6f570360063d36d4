// Package testutil provides deterministic clocks for engine and harness
// tests.
package testutil

import (
	"sync"
	"time"
)

// BaseTime is the fixed instant deterministic test clocks start from.
// Golden snapshots are written against it.
var BaseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// FrozenClock always reports the same instant. With it, every duration
// the engine measures is zero and every timestamp is identical, which
// keeps golden snapshots byte-stable.
type FrozenClock struct {
	at time.Time
}

// NewFrozenClock creates a clock pinned to at.
func NewFrozenClock(at time.Time) *FrozenClock {
	return &FrozenClock{at: at}
}

// Now returns the pinned instant.
func (c *FrozenClock) Now() time.Time { return c.at }

// SteppingClock advances by a fixed step on every reading. Useful for
// metrics tests that need non-zero, predictable durations.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewSteppingClock creates a clock whose first reading is start and
// whose every subsequent reading is step later.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{next: start, step: step}
}

// Now returns the next reading and advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}
