package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/psychectl/psyche/internal/command"
)

// BatchRecord groups the members of a successfully executed batch so
// they can be undone and redone as one atomic unit.
type BatchRecord struct {
	ID        string
	Members   []command.Command
	Timestamp time.Time
}

func (b *BatchRecord) description() string {
	return fmt.Sprintf("batch %s (%d commands)", b.ID, len(b.Members))
}

// BatchResult reports a fully successful batch execution.
type BatchResult struct {
	BatchID string
	Results []any
}

// RollbackFailure identifies one member whose reversal failed during a
// best-effort rollback.
type RollbackFailure struct {
	Index       int
	CommandKind string
	Err         error
}

// RollbackReport summarizes a best-effort reverse-order rollback.
//
// Rollback deliberately maximizes partial recovery over strict
// atomicity: a member that fails to reverse is reported here and the
// remaining members are still attempted.
type RollbackReport struct {
	Attempted int
	Reversed  int
	Failures  []RollbackFailure
}

// ExecuteBatch runs an ordered list of commands as one logical unit.
//
// Every member is structurally validated before any member executes
// (fail-fast: a malformed third command means nothing runs). Members
// then execute strictly in order through the same eligibility-then-
// execute path as single commands, so metrics and execution
// notifications fire per member - but members are not individually
// recorded; on full success the batch as a whole gets one history entry
// and one undo-stack unit, and the redo stack is cleared.
//
// On the first member failure, execution stops and every member executed
// so far is rolled back in reverse order, best-effort. The returned
// *OpError carries the failing member's index, its underlying error, and
// the RollbackReport. A failed batch is not added to history.
func (x *Executor) ExecuteBatch(ctx context.Context, cmds []command.Command, env command.Env) (*BatchResult, error) {
	if len(cmds) == 0 {
		return nil, newOpError(CodeValidation, "batch", "batch is empty")
	}
	for i, cmd := range cmds {
		if oe := x.validate(cmd, "batch"); oe != nil {
			oe.MemberIndex = i
			oe.Message = fmt.Sprintf("member %d: %s", i, oe.Message)
			return nil, oe
		}
	}
	if x.current != nil {
		return nil, newOpError(CodeValidation, "batch", "another batch is already in flight")
	}

	batch := &BatchRecord{
		ID:        x.ids.Generate(),
		Timestamp: x.clock.Now(),
	}
	x.current = batch
	defer func() { x.current = nil }()

	x.logger.Debug("batch starting", "batch_id", batch.ID, "members", len(cmds))

	start := x.clock.Now()
	results := make([]any, 0, len(cmds))
	for i, cmd := range cmds {
		res, _, err := x.run(ctx, cmd, env)
		if err != nil {
			report := x.rollback(ctx, cmds[:i], env)
			elapsed := x.clock.Now().Sub(start)
			x.logger.Error("batch failed, rolled back",
				"batch_id", batch.ID,
				"failed_index", i,
				"reversed", report.Reversed,
				"rollback_failures", len(report.Failures),
				"error", err,
			)
			oe := &OpError{
				Code:        CodeBatch,
				Op:          "batch",
				Message:     fmt.Sprintf("member %d failed", i),
				BatchID:     batch.ID,
				MemberIndex: i,
				Rollback:    report,
				Err:         err,
			}
			x.bus.publish(Notification{
				Kind:      BatchFailed,
				BatchID:   batch.ID,
				Err:       oe,
				Timestamp: start,
				Duration:  elapsed,
			})
			return nil, oe
		}
		batch.Members = append(batch.Members, cmd)
		results = append(results, res)
	}
	elapsed := x.clock.Now().Sub(start)

	x.history.append(Entry{
		Kind:        EntryBatch,
		Description: batch.description(),
		BatchID:     batch.ID,
		Members:     memberDescriptions(batch.Members),
		Result:      results,
		Timestamp:   batch.Timestamp,
		Duration:    elapsed,
		Success:     true,
	})
	x.undo.push(unit{kind: unitBatch, batch: batch})
	x.redo.clear()
	x.metrics.batchOps++

	x.logger.Debug("batch completed", "batch_id", batch.ID, "duration", elapsed)
	x.bus.publish(Notification{
		Kind:        BatchCompleted,
		BatchID:     batch.ID,
		Description: batch.description(),
		Result:      results,
		Timestamp:   batch.Timestamp,
		Duration:    elapsed,
	})
	return &BatchResult{BatchID: batch.ID, Results: results}, nil
}

// rollback reverses already-executed members in reverse order.
//
// Best-effort: a member that is no longer marked executed is skipped, a
// member lacking reversal capability or whose Undo errors is reported in
// the RollbackReport, and the remaining members are still attempted.
// The triggering error is the caller's to surface; rollback never aborts.
func (x *Executor) rollback(ctx context.Context, executed []command.Command, env command.Env) *RollbackReport {
	report := &RollbackReport{}
	for i := len(executed) - 1; i >= 0; i-- {
		cmd := executed[i]
		if !cmd.Executed() {
			continue
		}
		report.Attempted++

		rev, ok := cmd.(command.Reversible)
		if !ok {
			failure := newOpError(CodeUnsupportedReversal, "rollback", "command is not reversible")
			failure.CommandKind = cmd.Kind()
			failure.MemberIndex = i
			report.Failures = append(report.Failures, RollbackFailure{
				Index:       i,
				CommandKind: cmd.Kind(),
				Err:         failure,
			})
			x.logger.Warn("rollback skipped irreversible member",
				"index", i,
				"kind", cmd.Kind(),
			)
			continue
		}

		if _, err := rev.Undo(ctx, env); err != nil {
			report.Failures = append(report.Failures, RollbackFailure{
				Index:       i,
				CommandKind: cmd.Kind(),
				Err:         err,
			})
			x.logger.Warn("rollback of member failed",
				"index", i,
				"kind", cmd.Kind(),
				"error", err,
			)
			continue
		}
		cmd.MarkExecuted(false, time.Time{})
		report.Reversed++
	}
	return report
}

func memberDescriptions(members []command.Command) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Description()
	}
	return out
}
