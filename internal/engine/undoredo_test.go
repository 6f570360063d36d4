package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndo_EmptyStack(t *testing.T) {
	x := newTestExecutor(t)

	_, err := x.Undo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsEmptyStack(err))
}

func TestRedo_EmptyStack(t *testing.T) {
	x := newTestExecutor(t)

	_, err := x.Redo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsEmptyStack(err))
}

func TestUndo_ReversesAndMovesToRedoStack(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	require.Equal(t, 1, world.count("a"))

	res, err := x.Undo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res)
	assert.Equal(t, 0, world.count("a"))
	assert.False(t, cmd.Executed())
	assert.True(t, cmd.Timestamp().IsZero())

	assert.False(t, x.CanUndo())
	assert.True(t, x.CanRedo())
	assert.Equal(t, int64(1), x.Metrics().UndoOperations)
}

func TestUndo_FailureIsSideEffectFree(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)

	cmd.undoErr = errors.New("memory palace locked")
	_, err = x.Undo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsExecution(err))

	// The command is restored to the stack: canUndo reads as before.
	assert.True(t, x.CanUndo())
	assert.False(t, x.CanRedo())
	assert.Equal(t, int64(0), x.Metrics().UndoOperations)

	// Clearing the scripted failure makes the retry succeed.
	cmd.undoErr = nil
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, world.count("a"))
}

func TestUndo_DeniedByChecker(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)

	cmd.undoDenied = true
	_, err = x.Undo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsUnsupportedReversal(err))
	assert.True(t, x.CanUndo(), "denied undo must leave the stack unchanged")
	assert.Equal(t, 1, world.count("a"), "denied undo must not touch domain state")
}

func TestUndo_CheckerError(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)

	cmd.undoCheckErr = errors.New("introspection fault")
	_, err = x.Undo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsUnsupportedReversal(err))
	assert.ErrorContains(t, err, "introspection fault")
	assert.True(t, x.CanUndo())
}

func TestRedo_RoundTripLaw(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	stateAfterExecute := world.count("a")

	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)
	require.NotEqual(t, stateAfterExecute, world.count("a"))

	// Redo is forward replay: it restores the post-execute state, not
	// the pre-execute state.
	res, err := x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, stateAfterExecute, res)
	assert.Equal(t, stateAfterExecute, world.count("a"))
	assert.True(t, cmd.Executed())

	assert.True(t, x.CanUndo())
	assert.False(t, x.CanRedo())
	assert.Equal(t, int64(1), x.Metrics().RedoOperations)
}

func TestRedo_FailurePushesBack(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)

	// Domain preconditions changed between undo and redo: surfaced as
	// an ordinary execution error, unit back on the redo stack.
	cmd.execErr = errors.New("thought no longer exists")
	_, err = x.Redo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsExecution(err))
	assert.True(t, x.CanRedo(), "failed redo must leave the unit on the redo stack")
	assert.Equal(t, int64(0), x.Metrics().RedoOperations)

	cmd.execErr = nil
	_, err = x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, x.CanRedo())
}

func TestRedo_IneligibleFailurePushesBack(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()
	cmd := newFakeCmd(world, "a")

	_, err := x.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)

	cmd.ineligible = true
	_, err = x.Redo(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsIneligible(err))
	assert.True(t, x.CanRedo())
}

func TestUndoRedo_Interleaved(t *testing.T) {
	x := newTestExecutor(t)
	world := newFakeWorld()

	a := newFakeCmd(world, "a")
	b := newFakeCmd(world, "b")
	for _, cmd := range []*fakeCmd{a, b} {
		_, err := x.Execute(context.Background(), cmd, nil)
		require.NoError(t, err)
	}

	// Undo pops most-recent-first.
	_, err := x.Undo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, world.count("b"))
	assert.Equal(t, 1, world.count("a"))

	_, err = x.Undo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, world.count("a"))
	assert.False(t, x.CanUndo())

	// Redo re-applies in the reverse of undo order.
	_, err = x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, world.count("a"))

	_, err = x.Redo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, world.count("b"))
	assert.False(t, x.CanRedo())
}
