package command

import (
	"context"
	"time"
)

// Env is the opaque execution context supplied by the embedding
// application (feature flags, session data, narrative hooks). The engine
// passes it through to commands untouched and never inspects it.
//
// A nil Env is valid and equivalent to an empty one.
type Env map[string]any

// Command is the contract every debug operation must satisfy.
//
// Ownership: commands are created and owned by the caller. The engine
// borrows them for the duration of execute/undo/redo calls and retains
// references in its history and stacks for later reversal - it never
// clones them. A command instance therefore represents one logical
// operation, not a reusable template.
type Command interface {
	// Kind identifies the command type (e.g. "mind.kill"). Used for
	// history search and stack summaries.
	Kind() string

	// Description returns a human-readable summary of the operation.
	Description() string

	// CanExecute reports whether the command is currently eligible to
	// run. Returning false, or an error, prevents execution without
	// mutating any engine state.
	CanExecute(ctx context.Context, env Env) (bool, error)

	// Execute performs the operation and returns its result. The engine
	// suspends until Execute settles; there is no timeout at this layer.
	Execute(ctx context.Context, env Env) (any, error)

	// Executed reports whether the last Execute succeeded and has not
	// since been undone.
	Executed() bool

	// MarkExecuted records the outcome of an execute or undo.
	// Called by the engine only; command authors get it from Base.
	MarkExecuted(executed bool, at time.Time)

	// Timestamp returns the instant of the last successful execute, or
	// the zero time if the command was undone or never ran.
	Timestamp() time.Time
}

// Reversible is the optional reversal capability. Commands implementing
// it participate in undo/redo; commands that don't still execute and
// appear in history, but never enter the undo stack.
//
// It is the command author's responsibility to snapshot whatever
// pre-mutation state Undo needs - the engine only tracks the command
// instance, not the domain objects it mutates.
type Reversible interface {
	Command

	// Undo reverses the command's last Execute and returns the
	// restored state (or another opaque payload).
	Undo(ctx context.Context, env Env) (any, error)
}

// UndoChecker is the optional "can-undo" query accompanying Reversible.
// When present, the engine consults it before attempting reversal; when
// absent, reversal is assumed to always be permitted.
type UndoChecker interface {
	// CanUndo reports whether reversal is currently possible.
	CanUndo(ctx context.Context, env Env) (bool, error)
}
