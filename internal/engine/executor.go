package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/psychectl/psyche/internal/command"
)

// Executor is the reversible command execution engine.
//
// It validates, executes, and records commands; maintains the undo/redo
// stack pair; executes batches atomically with rollback-on-failure; and
// aggregates execution metrics. Construction is cheap and an Executor
// carries no goroutines of its own.
//
// See the package documentation for the concurrency contract: entry
// points are not safe for concurrent use and callers must serialize them.
type Executor struct {
	history *ledger
	undo    stack
	redo    stack
	metrics metrics

	clock  Clock
	ids    BatchIDGenerator
	logger *slog.Logger
	bus    *bus

	// current is the single in-flight batch marker. Non-nil exactly
	// while a batch's members are executing, which suppresses the
	// per-command history/stack bookkeeping in Execute.
	current *BatchRecord

	capacity int
}

// Option configures an Executor.
type Option func(*Executor)

// WithHistoryCapacity bounds the history ledger. Values < 1 fall back to
// DefaultCapacity.
func WithHistoryCapacity(n int) Option {
	return func(x *Executor) { x.capacity = n }
}

// WithClock injects the wall clock used for timestamps and durations.
// Tests use a frozen or stepping clock for determinism.
func WithClock(c Clock) Option {
	return func(x *Executor) { x.clock = c }
}

// WithIDGenerator injects the batch ID generator.
// Defaults to UUIDv7Generator.
func WithIDGenerator(g BatchIDGenerator) Option {
	return func(x *Executor) { x.ids = g }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// New creates an Executor with the given options.
func New(opts ...Option) *Executor {
	x := &Executor{
		clock:    SystemClock{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		bus:      newBus(),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(x)
	}
	x.history = newLedger(x.capacity)
	return x
}

// Execute runs one command through structural validation, the command's
// own eligibility check, and execution. On success the command is
// appended to history and, if reversible, pushed onto the undo stack;
// any successful top-level execute clears the redo stack, because new
// history invalidates the redo timeline.
//
// Validation failures, eligibility failures, and runtime execution
// failures all propagate to the caller as *OpError; none of them mutate
// history or the stacks. Execution is at-most-once per call - the engine
// never retries.
func (x *Executor) Execute(ctx context.Context, cmd command.Command, env command.Env) (any, error) {
	if oe := x.validate(cmd, "execute"); oe != nil {
		return nil, oe
	}

	res, elapsed, err := x.run(ctx, cmd, env)
	if err != nil {
		return nil, err
	}

	// Batch members are not individually recorded; the batch as a whole is.
	if x.current == nil {
		x.record(cmd, res, elapsed)
	}
	return res, nil
}

// validate checks the structural command contract.
//
// With a typed contract most structural faults are compile-time errors;
// what remains is the nil check and the reversal-capability gap: a
// Reversible command without an UndoChecker is legal but gets a debug
// note, since the engine will assume reversal is always permitted.
func (x *Executor) validate(cmd command.Command, op string) *OpError {
	if cmd == nil {
		return newOpError(CodeValidation, op, "command is nil")
	}
	if _, ok := cmd.(command.Reversible); ok {
		if _, ok := cmd.(command.UndoChecker); !ok {
			x.logger.Debug("command has Undo but no CanUndo; assuming reversal is always permitted",
				"kind", cmd.Kind(),
			)
		}
	}
	return nil
}

// run is the shared eligibility-then-execute path used by Execute, batch
// members, and Redo. Metrics and execution notifications fire here;
// history and stack bookkeeping do not.
func (x *Executor) run(ctx context.Context, cmd command.Command, env command.Env) (any, time.Duration, error) {
	ok, err := cmd.CanExecute(ctx, env)
	if err != nil {
		oe := newOpError(CodeIneligible, "execute", "eligibility check failed")
		oe.CommandKind = cmd.Kind()
		oe.Err = err
		return nil, 0, oe
	}
	if !ok {
		oe := newOpError(CodeIneligible, "execute", "command reports itself ineligible")
		oe.CommandKind = cmd.Kind()
		return nil, 0, oe
	}

	start := x.clock.Now()
	res, err := cmd.Execute(ctx, env)
	elapsed := x.clock.Now().Sub(start)

	if err != nil {
		x.metrics.recordExecution(elapsed, false)
		x.logger.Error("command execution failed",
			"kind", cmd.Kind(),
			"duration", elapsed,
			"error", err,
		)
		x.bus.publish(Notification{
			Kind:        ExecutionFailed,
			CommandKind: cmd.Kind(),
			Description: cmd.Description(),
			Err:         err,
			Timestamp:   start,
			Duration:    elapsed,
		})
		oe := newOpError(CodeExecution, "execute", "command execution failed")
		oe.CommandKind = cmd.Kind()
		oe.Err = err
		return nil, elapsed, oe
	}

	x.metrics.recordExecution(elapsed, true)
	cmd.MarkExecuted(true, start)
	x.logger.Debug("command executed",
		"kind", cmd.Kind(),
		"duration", elapsed,
	)
	x.bus.publish(Notification{
		Kind:        ExecutionCompleted,
		CommandKind: cmd.Kind(),
		Description: cmd.Description(),
		Result:      res,
		Timestamp:   start,
		Duration:    elapsed,
	})
	return res, elapsed, nil
}

// record performs the post-success bookkeeping for a top-level command:
// history entry, undo stack push for reversible commands, redo stack
// invalidation.
func (x *Executor) record(cmd command.Command, res any, elapsed time.Duration) {
	x.history.append(Entry{
		Kind:        EntryCommand,
		CommandKind: cmd.Kind(),
		Description: cmd.Description(),
		Command:     cmd,
		Result:      res,
		Timestamp:   cmd.Timestamp(),
		Duration:    elapsed,
		Success:     true,
	})
	if _, ok := cmd.(command.Reversible); ok {
		x.undo.push(unit{kind: unitCommand, cmd: cmd})
	}
	// New history invalidates the redo timeline even when the command
	// itself is irreversible: redoing an operation whose causal
	// predecessor has been superseded would corrupt state.
	x.redo.clear()
}

// CanUndo reports whether the undo stack is non-empty.
func (x *Executor) CanUndo() bool { return x.undo.len() > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (x *Executor) CanRedo() bool { return x.redo.len() > 0 }

// History returns a copy of the most recent history entries, oldest
// first. limit <= 0 returns the full retained ledger.
func (x *Executor) History(limit int) []Entry { return x.history.tail(limit) }

// SearchHistory returns copies of history entries matching q.
func (x *Executor) SearchHistory(q Query) []Entry { return x.history.search(q) }

// ClearHistory empties the history ledger. The undo/redo stacks are
// unaffected.
func (x *Executor) ClearHistory() { x.history.clear() }

// UndoStack summarizes the undo stack, oldest unit first, without
// exposing live command references.
func (x *Executor) UndoStack() []StackSummary { return x.undo.summaries() }

// RedoStack summarizes the redo stack, oldest unit first.
func (x *Executor) RedoStack() []StackSummary { return x.redo.summaries() }

// ClearStacks empties both stacks. History is unaffected.
func (x *Executor) ClearStacks() {
	x.undo.clear()
	x.redo.clear()
}

// Metrics returns a copy of the aggregate execution metrics.
func (x *Executor) Metrics() MetricsSnapshot { return x.metrics.snapshot() }

// Subscribe registers a notification channel with the given buffer.
// Publishing never blocks: a subscriber that falls behind loses
// notifications rather than stalling the engine. The channel closes
// when the engine is closed.
func (x *Executor) Subscribe(buffer int) <-chan Notification {
	return x.bus.subscribe(buffer)
}

// Close closes the notification bus. The engine remains usable but no
// further notifications are delivered.
func (x *Executor) Close() { x.bus.close() }
