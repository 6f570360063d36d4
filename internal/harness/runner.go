package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/psychectl/psyche/internal/command"
	"github.com/psychectl/psyche/internal/engine"
	"github.com/psychectl/psyche/internal/mind"
	"github.com/psychectl/psyche/internal/testutil"
)

// Snapshot is the deterministic end state of a scenario run. Field
// order is fixed; MarshalJSON output is the golden file format.
type Snapshot struct {
	Scenario  string         `json:"scenario"`
	History   []HistoryEntry `json:"history"`
	UndoStack []StackItem    `json:"undo_stack"`
	RedoStack []StackItem    `json:"redo_stack"`
	Metrics   MetricsView    `json:"metrics"`
	Processes []ProcessView  `json:"processes"`
	Errors    []StepError    `json:"errors"`
}

// HistoryEntry is one rendered ledger entry. Results are deliberately
// omitted: they may carry arbitrary domain payloads, and the process
// table already captures their effect.
type HistoryEntry struct {
	Kind        string   `json:"kind"`
	CommandKind string   `json:"command_kind,omitempty"`
	Description string   `json:"description"`
	BatchID     string   `json:"batch_id,omitempty"`
	Members     []string `json:"members,omitempty"`
	Timestamp   string   `json:"timestamp"`
	DurationMS  int64    `json:"duration_ms"`
	Success     bool     `json:"success"`
}

// StackItem is one rendered stack unit, oldest first. Timestamps are
// omitted: the frozen clock makes them redundant with the history.
type StackItem struct {
	Kind        string `json:"kind"`
	CommandKind string `json:"command_kind,omitempty"`
	Description string `json:"description"`
	CanUndoNow  bool   `json:"can_undo_now"`
}

// MetricsView renders the aggregate metrics with durations in
// milliseconds.
type MetricsView struct {
	TotalExecutions    int64 `json:"total_executions"`
	FailedExecutions   int64 `json:"failed_executions"`
	TotalExecutionMS   int64 `json:"total_execution_ms"`
	AverageExecutionMS int64 `json:"average_execution_ms"`
	UndoOperations     int64 `json:"undo_operations"`
	RedoOperations     int64 `json:"redo_operations"`
	BatchOperations    int64 `json:"batch_operations"`
}

// ProcessView is one rendered process table row.
type ProcessView struct {
	PID       int     `json:"pid"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Stability float64 `json:"stability"`
}

// StepError records an expected failure: the 1-based step index and the
// engine error code it failed with. Messages are omitted because they
// carry driver-specific text.
type StepError struct {
	Step int    `json:"step"`
	Code string `json:"code"`
}

// defaultBatchIDs is the fixed ID sequence used when a scenario does
// not pin its own.
func defaultBatchIDs() []string {
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("batch-%04d", i+1)
	}
	return ids
}

// Run executes a scenario against a fresh in-memory mind database and
// returns the end-state snapshot.
//
// Steps without an expect_error clause must succeed; steps with one
// must fail with exactly that engine code. Any other outcome aborts
// the run.
func Run(ctx context.Context, scenario *Scenario) (*Snapshot, error) {
	store, err := mind.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if len(scenario.Seed) > 0 {
		procs := make([]mind.Process, len(scenario.Seed))
		for i, seed := range scenario.Seed {
			procs[i] = mind.Process{
				PID:       seed.PID,
				Name:      seed.Name,
				Status:    seed.Status,
				CPU:       seed.CPU,
				Memory:    seed.Memory,
				Stability: seed.Stability,
			}
		}
		if err := store.Seed(ctx, procs); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}

	batchIDs := scenario.BatchIDs
	if len(batchIDs) == 0 {
		batchIDs = defaultBatchIDs()
	}

	opts := []engine.Option{
		engine.WithClock(testutil.NewFrozenClock(testutil.BaseTime)),
		engine.WithIDGenerator(engine.NewFixedGenerator(batchIDs...)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.HistoryCapacity > 0 {
		opts = append(opts, engine.WithHistoryCapacity(scenario.HistoryCapacity))
	}
	x := engine.New(opts...)
	defer x.Close()

	var stepErrors []StepError
	for i, step := range scenario.Steps {
		err := runStep(ctx, x, store, &step)
		if step.ExpectError == "" {
			if err != nil {
				return nil, fmt.Errorf("step %d: unexpected error: %w", i+1, err)
			}
			continue
		}
		if err == nil {
			return nil, fmt.Errorf("step %d: expected %s error, got success", i+1, step.ExpectError)
		}
		var oe *engine.OpError
		if !errors.As(err, &oe) || string(oe.Code) != step.ExpectError {
			return nil, fmt.Errorf("step %d: expected %s error, got: %w", i+1, step.ExpectError, err)
		}
		stepErrors = append(stepErrors, StepError{Step: i + 1, Code: string(oe.Code)})
	}

	return buildSnapshot(ctx, scenario.Name, x, store, stepErrors)
}

func runStep(ctx context.Context, x *engine.Executor, store *mind.Store, step *Step) error {
	switch {
	case step.Run != nil:
		cmd, err := buildCommand(store, step.Run)
		if err != nil {
			return err
		}
		_, err = x.Execute(ctx, cmd, nil)
		return err

	case len(step.Batch) > 0:
		cmds := make([]command.Command, 0, len(step.Batch))
		for _, spec := range step.Batch {
			spec := spec
			cmd, err := buildCommand(store, &spec)
			if err != nil {
				return err
			}
			cmds = append(cmds, cmd)
		}
		_, err := x.ExecuteBatch(ctx, cmds, nil)
		return err

	case step.Undo:
		_, err := x.Undo(ctx, nil)
		return err

	case step.Redo:
		_, err := x.Redo(ctx, nil)
		return err

	case step.Clear == "history":
		x.ClearHistory()
		return nil

	case step.Clear == "stacks":
		x.ClearStacks()
		return nil

	default:
		return fmt.Errorf("step names no operation")
	}
}

func buildCommand(store *mind.Store, spec *CommandSpec) (command.Command, error) {
	switch spec.Op {
	case "kill":
		return mind.NewKillCommand(store, spec.PID), nil
	case "restart":
		return mind.NewRestartCommand(store, spec.PID), nil
	case "optimize":
		return mind.NewOptimizeCommand(store, spec.PID), nil
	case "scan":
		return mind.NewScanCommand(store), nil
	default:
		return nil, fmt.Errorf("unknown op %q", spec.Op)
	}
}

func buildSnapshot(ctx context.Context, name string, x *engine.Executor, store *mind.Store, stepErrors []StepError) (*Snapshot, error) {
	snap := &Snapshot{
		Scenario:  name,
		History:   make([]HistoryEntry, 0),
		UndoStack: renderStack(x.UndoStack()),
		RedoStack: renderStack(x.RedoStack()),
		Processes: make([]ProcessView, 0),
		Errors:    make([]StepError, 0),
	}
	snap.Errors = append(snap.Errors, stepErrors...)

	for _, e := range x.History(0) {
		snap.History = append(snap.History, HistoryEntry{
			Kind:        string(e.Kind),
			CommandKind: e.CommandKind,
			Description: e.Description,
			BatchID:     e.BatchID,
			Members:     e.Members,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
			DurationMS:  e.Duration.Milliseconds(),
			Success:     e.Success,
		})
	}

	m := x.Metrics()
	snap.Metrics = MetricsView{
		TotalExecutions:    m.TotalExecutions,
		FailedExecutions:   m.FailedExecutions,
		TotalExecutionMS:   m.TotalExecutionTime.Milliseconds(),
		AverageExecutionMS: m.AverageExecutionTime.Milliseconds(),
		UndoOperations:     m.UndoOperations,
		RedoOperations:     m.RedoOperations,
		BatchOperations:    m.BatchOperations,
	}

	procs, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		snap.Processes = append(snap.Processes, ProcessView{
			PID:       p.PID,
			Name:      p.Name,
			Status:    p.Status,
			CPU:       p.CPU,
			Memory:    p.Memory,
			Stability: p.Stability,
		})
	}

	return snap, nil
}

func renderStack(summaries []engine.StackSummary) []StackItem {
	out := make([]StackItem, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, StackItem{
			Kind:        s.Kind,
			CommandKind: s.CommandKind,
			Description: s.Description,
			CanUndoNow:  s.CanUndoNow,
		})
	}
	return out
}

// Marshal renders the snapshot in the golden file format: two-space
// indented JSON with a trailing newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
