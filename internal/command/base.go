package command

import "time"

// Base provides the executed-flag and timestamp bookkeeping required by
// the Command interface. Concrete commands embed it by value and
// implement the remaining methods themselves.
//
// Base is not safe for concurrent use; the engine mutates it only from
// its own (serialized) entry points.
type Base struct {
	executed bool
	ts       time.Time
}

// Executed reports whether the command's last Execute succeeded and has
// not since been undone.
func (b *Base) Executed() bool { return b.executed }

// MarkExecuted records the outcome of an execute (executed=true) or an
// undo (executed=false). Undoing resets the timestamp to the zero time.
func (b *Base) MarkExecuted(executed bool, at time.Time) {
	b.executed = executed
	if executed {
		b.ts = at
	} else {
		b.ts = time.Time{}
	}
}

// Timestamp returns the instant of the last successful execute, or the
// zero time after an undo.
func (b *Base) Timestamp() time.Time { return b.ts }
