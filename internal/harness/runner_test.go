package harness

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoProcessSeed() []ProcessSeed {
	return []ProcessSeed{
		{PID: 1, Name: "ego", Status: "running", CPU: 40, Memory: 30, Stability: 0.9},
		{PID: 2, Name: "anxiety", Status: "running", CPU: 80, Memory: 60, Stability: 0.3},
	}
}

func TestRun_SnapshotCapturesEndState(t *testing.T) {
	snap, err := Run(context.Background(), &Scenario{
		Name:        "smoke",
		Description: "kill then undo",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "kill", PID: 2}},
			{Undo: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, snap.History, 1)
	assert.Equal(t, "mind.kill", snap.History[0].CommandKind)
	assert.Empty(t, snap.UndoStack)
	require.Len(t, snap.RedoStack, 1)
	assert.Equal(t, int64(1), snap.Metrics.UndoOperations)

	// The kill was undone, so the table matches the seed.
	require.Len(t, snap.Processes, 2)
	assert.Equal(t, "running", snap.Processes[1].Status)
}

func TestRun_ExpectedErrorIsRecorded(t *testing.T) {
	snap, err := Run(context.Background(), &Scenario{
		Name:        "expected-failure",
		Description: "undo with nothing to undo",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Undo: true, ExpectError: "EMPTY_STACK"},
		},
	})
	require.NoError(t, err)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, 1, snap.Errors[0].Step)
	assert.Equal(t, "EMPTY_STACK", snap.Errors[0].Code)
}

func TestRun_UnexpectedErrorAborts(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name:        "aborts",
		Description: "kill of unknown pid without expect_error",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "kill", PID: 999}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1: unexpected error")
}

func TestRun_ExpectedErrorButSuccessAborts(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name:        "aborts",
		Description: "successful step marked as expecting failure",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "scan"}, ExpectError: "EXECUTION"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got success")
}

func TestRun_WrongErrorCodeAborts(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name:        "aborts",
		Description: "eligibility failure marked as execution failure",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "kill", PID: 999}, ExpectError: "EXECUTION"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected EXECUTION error")
}

func TestRun_ClearSteps(t *testing.T) {
	snap, err := Run(context.Background(), &Scenario{
		Name:        "clears",
		Description: "clear stacks then history",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "kill", PID: 2}},
			{Clear: "stacks"},
			{Undo: true, ExpectError: "EMPTY_STACK"},
			{Clear: "history"},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, snap.History)
	assert.Empty(t, snap.UndoStack)
	assert.Empty(t, snap.RedoStack)
}

func TestSnapshot_MarshalIsStableJSON(t *testing.T) {
	snap, err := Run(context.Background(), &Scenario{
		Name:        "marshal",
		Description: "marshalling shape",
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Run: &CommandSpec{Op: "scan"}},
		},
	})
	require.NoError(t, err)

	data, err := snap.Marshal()
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.True(t, json.Valid(data))

	// Empty collections render as [], not null.
	assert.Contains(t, string(data), `"redo_stack": []`)
	assert.Contains(t, string(data), `"errors": []`)
}

func TestRun_BatchIDsComeFromScenario(t *testing.T) {
	snap, err := Run(context.Background(), &Scenario{
		Name:        "pinned-ids",
		Description: "scenario-pinned batch id",
		BatchIDs:    []string{"custom-id"},
		Seed:        twoProcessSeed(),
		Steps: []Step{
			{Batch: []CommandSpec{{Op: "kill", PID: 1}, {Op: "kill", PID: 2}}},
		},
	})
	require.NoError(t, err)

	require.Len(t, snap.History, 1)
	assert.Equal(t, "custom-id", snap.History[0].BatchID)
}
