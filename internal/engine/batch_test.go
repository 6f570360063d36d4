package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychectl/psyche/internal/command"
)

func TestExecuteBatch_Empty(t *testing.T) {
	x := newTestExecutor(t)

	_, err := x.ExecuteBatch(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, x.History(0))

	_, err = x.ExecuteBatch(context.Background(), []command.Command{}, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, x.History(0))
}

func TestExecuteBatch_ValidatesUpFront(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	cmds := []command.Command{
		newFakeCmd(world, "a"),
		newFakeCmd(world, "b"),
		nil,
	}
	_, err := x.ExecuteBatch(context.Background(), cmds, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 2, oe.MemberIndex)

	// Fail-fast: nothing executed at all.
	assert.Equal(t, 0, world.count("a"))
	assert.Equal(t, 0, world.count("b"))
	assert.Equal(t, int64(0), x.Metrics().TotalExecutions)
}

func TestExecuteBatch_Success(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	cmds := []command.Command{
		newFakeCmd(world, "a"),
		newFakeCmd(world, "b"),
		newFakeCmd(world, "c"),
	}
	res, err := x.ExecuteBatch(context.Background(), cmds, nil)
	require.NoError(t, err)
	assert.Equal(t, "batch-0001", res.BatchID)
	assert.Equal(t, []any{1, 1, 1}, res.Results)

	// One history entry and one undo unit for the whole batch.
	entries := x.History(0)
	require.Len(t, entries, 1)
	assert.Equal(t, EntryBatch, entries[0].Kind)
	assert.Equal(t, "batch-0001", entries[0].BatchID)
	assert.Equal(t, []string{
		"fake command a",
		"fake command b",
		"fake command c",
	}, entries[0].Members)

	sums := x.UndoStack()
	require.Len(t, sums, 1)
	assert.Equal(t, "batch", sums[0].Kind)
	assert.True(t, sums[0].CanUndoNow)

	m := x.Metrics()
	assert.Equal(t, int64(3), m.TotalExecutions, "metrics fire per member")
	assert.Equal(t, int64(1), m.BatchOperations)
}

func TestExecuteBatch_ClearsRedoStack(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	_, err := x.Execute(context.Background(), newFakeCmd(world, "a"), nil)
	require.NoError(t, err)
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, x.CanRedo())

	_, err = x.ExecuteBatch(context.Background(), []command.Command{newFakeCmd(world, "b")}, nil)
	require.NoError(t, err)
	assert.False(t, x.CanRedo())
}

func TestExecuteBatch_MemberFailureRollsBack(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	members := []*fakeCmd{
		newFakeCmd(world, "m0"),
		newFakeCmd(world, "m1"),
		newFakeCmd(world, "m2"),
		newFakeCmd(world, "m3"),
		newFakeCmd(world, "m4"),
	}
	members[2].execErr = errors.New("thought refuses to die")

	cmds := make([]command.Command, len(members))
	for i, m := range members {
		cmds[i] = m
	}

	undoBefore := x.CanUndo()

	_, err := x.ExecuteBatch(context.Background(), cmds, nil)
	require.Error(t, err)
	assert.True(t, IsBatch(err))

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 2, oe.MemberIndex)
	require.NotNil(t, oe.Rollback)
	assert.Equal(t, 2, oe.Rollback.Attempted)
	assert.Equal(t, 2, oe.Rollback.Reversed)
	assert.Empty(t, oe.Rollback.Failures)

	// Members 0-1 were reversed: executed flags cleared, domain restored.
	assert.False(t, members[0].Executed())
	assert.False(t, members[1].Executed())
	assert.Equal(t, 0, world.count("m0"))
	assert.Equal(t, 0, world.count("m1"))
	assert.Equal(t, 0, world.count("m2"))

	// Members after the failure never ran.
	assert.Equal(t, 0, world.count("m3"))
	assert.Equal(t, 0, world.count("m4"))

	// No history entry; undo stack unaffected.
	assert.Empty(t, x.History(0))
	assert.Equal(t, undoBefore, x.CanUndo())
}

func TestExecuteBatch_RollbackReportsFailures(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	stubborn := newFakeCmd(world, "m0")
	stubborn.undoErr = errors.New("refuses reversal")
	fine := newFakeCmd(world, "m1")
	failing := newFakeCmd(world, "m2")
	failing.execErr = errors.New("boom")

	_, err := x.ExecuteBatch(context.Background(), []command.Command{stubborn, fine, failing}, nil)
	require.Error(t, err)

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	require.NotNil(t, oe.Rollback)

	// Best-effort: m1 reversed even though m0 could not be.
	assert.Equal(t, 2, oe.Rollback.Attempted)
	assert.Equal(t, 1, oe.Rollback.Reversed)
	require.Len(t, oe.Rollback.Failures, 1)
	assert.Equal(t, 0, oe.Rollback.Failures[0].Index)
	assert.ErrorContains(t, oe.Rollback.Failures[0].Err, "refuses reversal")

	assert.Equal(t, 0, world.count("m1"))
	assert.Equal(t, 1, world.count("m0"), "failed reversal leaves its mutation in place")
}

func TestExecuteBatch_IrreversibleMemberReportedDuringRollback(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	scan := newIrreversibleCmd(world, "m0")
	failing := newFakeCmd(world, "m1")
	failing.execErr = errors.New("boom")

	_, err := x.ExecuteBatch(context.Background(), []command.Command{scan, failing}, nil)
	require.Error(t, err)

	var oe *OpError
	require.ErrorAs(t, err, &oe)
	require.NotNil(t, oe.Rollback)
	require.Len(t, oe.Rollback.Failures, 1)
	assert.True(t, IsUnsupportedReversal(oe.Rollback.Failures[0].Err))
}

func TestExecuteBatch_UndoReversesAllMembers(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	cmds := []command.Command{
		newFakeCmd(world, "a"),
		newFakeCmd(world, "b"),
	}
	_, err := x.ExecuteBatch(context.Background(), cmds, nil)
	require.NoError(t, err)

	res, err := x.Undo(context.Background(), nil)
	require.NoError(t, err)

	report, ok := res.(*RollbackReport)
	require.True(t, ok)
	assert.Equal(t, 2, report.Reversed)
	assert.Equal(t, 0, world.count("a"))
	assert.Equal(t, 0, world.count("b"))

	assert.False(t, x.CanUndo())
	assert.True(t, x.CanRedo())
	assert.Equal(t, int64(1), x.Metrics().UndoOperations)
}

func TestExecuteBatch_RedoReplaysForwardOrder(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	cmds := []command.Command{
		newFakeCmd(world, "a"),
		newFakeCmd(world, "b"),
	}
	_, err := x.ExecuteBatch(context.Background(), cmds, nil)
	require.NoError(t, err)
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)

	res, err := x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 1}, res)
	assert.Equal(t, 1, world.count("a"))
	assert.Equal(t, 1, world.count("b"))
	assert.True(t, x.CanUndo())
	assert.False(t, x.CanRedo())
}

func TestExecuteBatch_RedoFailureLeavesUnitForRetry(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	a := newFakeCmd(world, "a")
	b := newFakeCmd(world, "b")
	_, err := x.ExecuteBatch(context.Background(), []command.Command{a, b}, nil)
	require.NoError(t, err)
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)

	b.execErr = errors.New("transient")
	_, err = x.Redo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsBatch(err))
	assert.True(t, x.CanRedo(), "failed batch redo stays on the redo stack")

	b.execErr = nil
	_, err = x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, x.CanRedo())
}

func TestExecuteBatch_ReentrantBatchRejected(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	reentrant := &hookCmd{hook: func(ctx context.Context) (any, error) {
		// Only one batch may be in flight at a time.
		_, err := x.ExecuteBatch(ctx, []command.Command{newFakeCmd(world, "inner")}, nil)
		return nil, err
	}}

	_, err := x.ExecuteBatch(context.Background(), []command.Command{reentrant}, nil)
	require.Error(t, err)
	assert.True(t, IsBatch(err))
	assert.ErrorContains(t, err, "already in flight")
	assert.Equal(t, 0, world.count("inner"))
}

func TestExecuteBatch_BatchIDsComeFromGenerator(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	first, err := x.ExecuteBatch(context.Background(), []command.Command{newFakeCmd(world, "a")}, nil)
	require.NoError(t, err)
	second, err := x.ExecuteBatch(context.Background(), []command.Command{newFakeCmd(world, "b")}, nil)
	require.NoError(t, err)

	assert.Equal(t, "batch-0001", first.BatchID)
	assert.Equal(t, "batch-0002", second.BatchID)
}
