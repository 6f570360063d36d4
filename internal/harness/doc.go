// Package harness runs YAML-described engine scenarios and snapshots
// their end state for golden-file comparison.
//
// A scenario seeds an in-memory mind database, drives the engine
// through a list of steps (single commands, batches, undo, redo,
// clears), and captures the resulting history ledger, undo/redo stacks,
// metrics, and process table as one deterministic JSON snapshot. A
// frozen clock and a fixed batch ID sequence keep snapshots
// byte-stable across runs.
package harness
