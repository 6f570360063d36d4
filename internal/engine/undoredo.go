package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/psychectl/psyche/internal/command"
)

// Undo reverses the most recent unit on the undo stack.
//
// An empty stack fails with an EMPTY_STACK error. A batch unit has its
// members reversed in reverse order, best-effort, and the resulting
// RollbackReport is returned as the result. A single command must be
// Reversible and, if it implements UndoChecker, currently permit
// reversal; otherwise the unit is pushed back unchanged and an
// UNSUPPORTED_REVERSAL error is returned - a failed Undo is side-effect
// free on the stacks.
//
// On success the unit moves to the redo stack, the undo metric is
// incremented, the command's executed flag is cleared, and an
// undo-completed notification fires.
func (x *Executor) Undo(ctx context.Context, env command.Env) (any, error) {
	u, ok := x.undo.pop()
	if !ok {
		return nil, newOpError(CodeEmptyStack, "undo", "nothing to undo")
	}
	start := x.clock.Now()

	if u.kind == unitBatch {
		report := x.rollback(ctx, u.batch.Members, env)
		elapsed := x.clock.Now().Sub(start)
		x.redo.push(u)
		x.metrics.undoOps++
		x.logger.Debug("batch undone",
			"batch_id", u.batch.ID,
			"reversed", report.Reversed,
			"failures", len(report.Failures),
		)
		x.bus.publish(Notification{
			Kind:        UndoCompleted,
			BatchID:     u.batch.ID,
			Description: u.batch.description(),
			Result:      report,
			Timestamp:   start,
			Duration:    elapsed,
		})
		return report, nil
	}

	cmd := u.cmd
	rev, ok := cmd.(command.Reversible)
	if !ok {
		x.undo.push(u)
		oe := newOpError(CodeUnsupportedReversal, "undo", "command does not support undo")
		oe.CommandKind = cmd.Kind()
		x.publishUndoFailed(cmd, oe, start, 0)
		return nil, oe
	}
	if chk, ok := cmd.(command.UndoChecker); ok {
		allowed, err := chk.CanUndo(ctx, env)
		if err != nil || !allowed {
			x.undo.push(u)
			oe := newOpError(CodeUnsupportedReversal, "undo", "reversal not currently permitted")
			oe.CommandKind = cmd.Kind()
			oe.Err = err
			x.publishUndoFailed(cmd, oe, start, 0)
			return nil, oe
		}
	}

	res, err := rev.Undo(ctx, env)
	elapsed := x.clock.Now().Sub(start)
	if err != nil {
		// Restore the pre-attempt stack state before surfacing the error.
		x.undo.push(u)
		oe := newOpError(CodeExecution, "undo", "undo failed")
		oe.CommandKind = cmd.Kind()
		oe.Err = err
		x.logger.Error("undo failed",
			"kind", cmd.Kind(),
			"duration", elapsed,
			"error", err,
		)
		x.publishUndoFailed(cmd, oe, start, elapsed)
		return nil, oe
	}

	cmd.MarkExecuted(false, time.Time{})
	x.redo.push(u)
	x.metrics.undoOps++
	x.logger.Debug("undo completed",
		"kind", cmd.Kind(),
		"duration", elapsed,
	)
	x.bus.publish(Notification{
		Kind:        UndoCompleted,
		CommandKind: cmd.Kind(),
		Description: cmd.Description(),
		Result:      res,
		Timestamp:   start,
		Duration:    elapsed,
	})
	return res, nil
}

// Redo re-applies the most recent unit on the redo stack through the
// normal eligibility-then-execute path - forward replay, not
// re-validation of the original call.
//
// Batch units replay their members in the original forward order with
// the same fail-fast semantics as ExecuteBatch, but with no rollback: a
// partial redo failure simply leaves the unit back on the redo stack for
// retry. A command whose domain preconditions have changed since the
// undo fails like any other execution and is likewise pushed back.
//
// On success the unit moves back to the undo stack and the redo metric
// is incremented.
func (x *Executor) Redo(ctx context.Context, env command.Env) (any, error) {
	u, ok := x.redo.pop()
	if !ok {
		return nil, newOpError(CodeEmptyStack, "redo", "nothing to redo")
	}
	start := x.clock.Now()

	if u.kind == unitBatch {
		results := make([]any, 0, len(u.batch.Members))
		for i, cmd := range u.batch.Members {
			res, _, err := x.run(ctx, cmd, env)
			if err != nil {
				x.redo.push(u)
				oe := &OpError{
					Code:        CodeBatch,
					Op:          "redo",
					Message:     fmt.Sprintf("member %d failed", i),
					BatchID:     u.batch.ID,
					MemberIndex: i,
					Err:         err,
				}
				x.bus.publish(Notification{
					Kind:      RedoFailed,
					BatchID:   u.batch.ID,
					Err:       oe,
					Timestamp: start,
					Duration:  x.clock.Now().Sub(start),
				})
				return nil, oe
			}
			results = append(results, res)
		}
		elapsed := x.clock.Now().Sub(start)
		x.undo.push(u)
		x.metrics.redoOps++
		x.logger.Debug("batch redone", "batch_id", u.batch.ID, "duration", elapsed)
		x.bus.publish(Notification{
			Kind:        RedoCompleted,
			BatchID:     u.batch.ID,
			Description: u.batch.description(),
			Result:      results,
			Timestamp:   start,
			Duration:    elapsed,
		})
		return results, nil
	}

	cmd := u.cmd
	res, elapsed, err := x.run(ctx, cmd, env)
	if err != nil {
		x.redo.push(u)
		x.bus.publish(Notification{
			Kind:        RedoFailed,
			CommandKind: cmd.Kind(),
			Description: cmd.Description(),
			Err:         err,
			Timestamp:   start,
			Duration:    elapsed,
		})
		return nil, err
	}

	x.undo.push(u)
	x.metrics.redoOps++
	x.logger.Debug("redo completed",
		"kind", cmd.Kind(),
		"duration", elapsed,
	)
	x.bus.publish(Notification{
		Kind:        RedoCompleted,
		CommandKind: cmd.Kind(),
		Description: cmd.Description(),
		Result:      res,
		Timestamp:   start,
		Duration:    elapsed,
	})
	return res, nil
}

func (x *Executor) publishUndoFailed(cmd command.Command, err error, start time.Time, elapsed time.Duration) {
	x.bus.publish(Notification{
		Kind:        UndoFailed,
		CommandKind: cmd.Kind(),
		Description: cmd.Description(),
		Err:         err,
		Timestamp:   start,
		Duration:    elapsed,
	})
}
