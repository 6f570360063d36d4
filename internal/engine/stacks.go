package engine

import (
	"context"
	"time"

	"github.com/psychectl/psyche/internal/command"
)

// unitKind distinguishes stack units.
type unitKind int

const (
	unitCommand unitKind = iota + 1
	unitBatch
)

// unit is one entry on the undo or redo stack: either a single command
// or a whole batch record reversed as one atomic piece.
type unit struct {
	kind  unitKind
	cmd   command.Command
	batch *BatchRecord
}

// stack is an ordered pile of units, most recent last.
//
// Stacks are NOT capacity-bounded; only the history ledger is. The undo
// timeline must stay complete or reversal order would silently skip
// operations.
type stack struct {
	units []unit
}

func (s *stack) push(u unit) {
	s.units = append(s.units, u)
}

// pop removes and returns the most recent unit.
func (s *stack) pop() (unit, bool) {
	if len(s.units) == 0 {
		return unit{}, false
	}
	u := s.units[len(s.units)-1]
	// Zero the vacated slot so the unit's command references become
	// collectable once the caller drops them.
	s.units[len(s.units)-1] = unit{}
	s.units = s.units[:len(s.units)-1]
	return u, true
}

func (s *stack) len() int { return len(s.units) }

func (s *stack) clear() {
	for i := range s.units {
		s.units[i] = unit{}
	}
	s.units = s.units[:0]
}

// StackSummary describes a stack unit without exposing the live command
// reference.
type StackSummary struct {
	Kind        string // "command" or "batch"
	CommandKind string // empty for batches
	Description string
	Timestamp   time.Time
	CanUndoNow  bool
}

// summaries renders the stack bottom-first (oldest unit first).
func (s *stack) summaries() []StackSummary {
	out := make([]StackSummary, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, summarize(u))
	}
	return out
}

// summarize evaluates a unit's current reversibility. Batch records are
// always attemptable (reversal is best-effort per member); single
// commands require the Reversible capability and, when present, a
// passing CanUndo query.
func summarize(u unit) StackSummary {
	if u.kind == unitBatch {
		return StackSummary{
			Kind:        "batch",
			Description: u.batch.description(),
			Timestamp:   u.batch.Timestamp,
			CanUndoNow:  true,
		}
	}

	sum := StackSummary{
		Kind:        "command",
		CommandKind: u.cmd.Kind(),
		Description: u.cmd.Description(),
		Timestamp:   u.cmd.Timestamp(),
	}
	if _, ok := u.cmd.(command.Reversible); !ok {
		return sum
	}
	if chk, ok := u.cmd.(command.UndoChecker); ok {
		allowed, err := chk.CanUndo(context.Background(), nil)
		sum.CanUndoNow = err == nil && allowed
		return sum
	}
	sum.CanUndoNow = true
	return sum
}
