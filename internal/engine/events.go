package engine

import (
	"sync"
	"time"
)

// NotificationKind identifies an engine lifecycle event.
type NotificationKind string

const (
	// ExecutionCompleted fires after every successful command execution,
	// including batch members and redone commands.
	ExecutionCompleted NotificationKind = "execution_completed"
	// ExecutionFailed fires when a command's primary operation errors.
	ExecutionFailed NotificationKind = "execution_failed"
	// UndoCompleted fires after a unit is successfully reversed.
	UndoCompleted NotificationKind = "undo_completed"
	// UndoFailed fires when reversal is refused or errors; the unit has
	// already been pushed back onto the undo stack.
	UndoFailed NotificationKind = "undo_failed"
	// RedoCompleted fires after a unit is successfully re-applied.
	RedoCompleted NotificationKind = "redo_completed"
	// RedoFailed fires when re-application errors; the unit has been
	// pushed back onto the redo stack.
	RedoFailed NotificationKind = "redo_failed"
	// BatchCompleted fires after a batch executes fully.
	BatchCompleted NotificationKind = "batch_completed"
	// BatchFailed fires after a mid-batch failure and its rollback.
	BatchFailed NotificationKind = "batch_failed"
)

// Notification describes one engine lifecycle event. It is consumed by
// the embedding application's narrative layer.
type Notification struct {
	Kind        NotificationKind
	CommandKind string // empty for batch events
	Description string
	BatchID     string // empty for single-command events
	Result      any    // success payload, nil on failures
	Err         error  // failure cause, nil on successes
	Timestamp   time.Time
	Duration    time.Duration
}

// bus fans notifications out to subscriber channels.
//
// Publishing never blocks: a subscriber whose buffer is full loses the
// notification rather than stalling the engine. This mirrors the
// coalescing signal channel used by the event queue of a single-writer
// loop - the engine's progress must never depend on consumers.
type bus struct {
	mu     sync.Mutex
	subs   []chan Notification
	closed bool
}

func newBus() *bus {
	return &bus{}
}

// subscribe registers a new subscriber with the given channel buffer.
// The returned channel is closed when the bus closes.
func (b *bus) subscribe(buffer int) <-chan Notification {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notification, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// publish delivers n to every subscriber that has buffer room.
func (b *bus) publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}

// close closes all subscriber channels. Idempotent.
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
