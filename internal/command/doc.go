// Package command defines the capability contract every debug operation
// satisfies.
//
// A Command is one reversible or irreversible mutation of the simulated
// consciousness. The execution engine (internal/engine) is agnostic to what
// a command actually does: it only requires the contract below, and it
// branches on reversal support with plain type assertions.
//
// Capability layering:
//
//	Command     - required: Kind, Description, CanExecute, Execute,
//	              plus executed-flag bookkeeping.
//	Reversible  - optional: adds Undo. Commands implementing it are
//	              eligible for the engine's undo/redo stacks.
//	UndoChecker - optional: adds CanUndo, a point-in-time query gating
//	              reversal. A Reversible command without an UndoChecker is
//	              assumed to always permit reversal.
//
// Concrete commands embed Base for the executed/timestamp bookkeeping and
// implement the rest themselves. See internal/mind for implementations.
package command
