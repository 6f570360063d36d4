// Package engine implements the reversible command execution engine at
// the heart of the psyche debugger.
//
// The Executor is a facade over four cooperating pieces:
//
//   - a bounded append-only history ledger of past top-level executions
//   - an undo/redo stack pair holding reversible units
//   - a batch transaction manager with reverse-order rollback on failure
//   - an aggregate metrics collector
//
// The engine is agnostic to what a command does: anything satisfying the
// command.Command contract can run through it, and anything additionally
// implementing command.Reversible participates in undo/redo.
//
// Concurrency model: the engine is single-writer by convention. Public
// entry points (Execute, ExecuteBatch, Undo, Redo) must not be invoked
// concurrently; each runs to completion, including the awaited work of
// the commands themselves, before the next begins. The engine carries no
// internal mutex - a caller issuing overlapping calls is responsible for
// serializing them. The single in-flight batch marker exists precisely
// to detect and represent this exclusivity. The notification bus is the
// one exception: subscribing and receiving are safe from any goroutine.
package engine
