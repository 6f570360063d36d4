package engine

import "time"

// Clock supplies wall-clock readings for timestamps and execution
// durations. It is injected rather than read from time.Now directly so
// that tests (and golden-file scenarios) run against deterministic time.
//
// See internal/testutil for frozen and stepping test clocks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time. This is the production clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
