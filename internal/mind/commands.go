package mind

import (
	"context"
	"fmt"

	"github.com/psychectl/psyche/internal/command"
)

var (
	_ command.Reversible  = (*KillCommand)(nil)
	_ command.UndoChecker = (*KillCommand)(nil)
	_ command.Reversible  = (*RestartCommand)(nil)
	_ command.UndoChecker = (*RestartCommand)(nil)
	_ command.Reversible  = (*OptimizeCommand)(nil)
	_ command.UndoChecker = (*OptimizeCommand)(nil)
	_ command.Command     = (*ScanCommand)(nil)
)

// ScanReport is the result of a mind.scan execution.
type ScanReport struct {
	Total         int     `json:"total"`
	Running       int     `json:"running"`
	Sleeping      int     `json:"sleeping"`
	Terminated    int     `json:"terminated"`
	MeanStability float64 `json:"mean_stability"`
}

// KillCommand terminates a mental process. Reversible: the pre-kill row
// is snapshotted on execute and written back verbatim on undo.
type KillCommand struct {
	command.Base

	store *Store
	pid   int
	prev  *Process
}

// NewKillCommand targets the process with the given PID.
func NewKillCommand(store *Store, pid int) *KillCommand {
	return &KillCommand{store: store, pid: pid}
}

func (c *KillCommand) Kind() string { return "mind.kill" }

func (c *KillCommand) Description() string {
	return fmt.Sprintf("kill process %d", c.pid)
}

// CanExecute requires the process to exist and not already be terminated.
func (c *KillCommand) CanExecute(ctx context.Context, _ command.Env) (bool, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	if p.Status == StatusTerminated {
		return false, fmt.Errorf("process %d already terminated", c.pid)
	}
	return true, nil
}

func (c *KillCommand) Execute(ctx context.Context, _ command.Env) (any, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return nil, err
	}
	snapshot := p
	c.prev = &snapshot

	p.Status = StatusTerminated
	p.CPU = 0
	p.Memory = 0
	if err := c.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CanUndo reverses only while the process is still terminated. If
// something else has revived it since, restoring the snapshot would
// clobber that state.
func (c *KillCommand) CanUndo(ctx context.Context, _ command.Env) (bool, error) {
	if c.prev == nil {
		return false, nil
	}
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	return p.Status == StatusTerminated, nil
}

func (c *KillCommand) Undo(ctx context.Context, _ command.Env) (any, error) {
	if c.prev == nil {
		return nil, fmt.Errorf("kill process %d: no snapshot to restore", c.pid)
	}
	if err := c.store.Update(ctx, *c.prev); err != nil {
		return nil, err
	}
	restored := *c.prev
	c.prev = nil
	return restored, nil
}

// RestartCommand revives a sleeping or terminated process.
type RestartCommand struct {
	command.Base

	store *Store
	pid   int
	prev  *Process
}

// restartBaselineCPU is the load a freshly restarted process settles at.
const restartBaselineCPU = 5.0

func NewRestartCommand(store *Store, pid int) *RestartCommand {
	return &RestartCommand{store: store, pid: pid}
}

func (c *RestartCommand) Kind() string { return "mind.restart" }

func (c *RestartCommand) Description() string {
	return fmt.Sprintf("restart process %d", c.pid)
}

// CanExecute requires the process to exist and not already be running.
func (c *RestartCommand) CanExecute(ctx context.Context, _ command.Env) (bool, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	if p.Status == StatusRunning {
		return false, fmt.Errorf("process %d already running", c.pid)
	}
	return true, nil
}

func (c *RestartCommand) Execute(ctx context.Context, _ command.Env) (any, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return nil, err
	}
	snapshot := p
	c.prev = &snapshot

	p.Status = StatusRunning
	p.CPU = restartBaselineCPU
	if err := c.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *RestartCommand) CanUndo(ctx context.Context, _ command.Env) (bool, error) {
	if c.prev == nil {
		return false, nil
	}
	_, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RestartCommand) Undo(ctx context.Context, _ command.Env) (any, error) {
	if c.prev == nil {
		return nil, fmt.Errorf("restart process %d: no snapshot to restore", c.pid)
	}
	if err := c.store.Update(ctx, *c.prev); err != nil {
		return nil, err
	}
	restored := *c.prev
	c.prev = nil
	return restored, nil
}

// OptimizeCommand trims a running process's resource usage and nudges
// its stability up.
type OptimizeCommand struct {
	command.Base

	store *Store
	pid   int
	prev  *Process
}

const (
	// optimizeTrim is the fraction of cpu/memory shed per optimization.
	optimizeTrim = 0.25
	// optimizeStabilityGain is added to stability, capped at 1.
	optimizeStabilityGain = 0.1
)

func NewOptimizeCommand(store *Store, pid int) *OptimizeCommand {
	return &OptimizeCommand{store: store, pid: pid}
}

func (c *OptimizeCommand) Kind() string { return "mind.optimize" }

func (c *OptimizeCommand) Description() string {
	return fmt.Sprintf("optimize process %d", c.pid)
}

// CanExecute requires a running process; optimizing a terminated or
// sleeping process makes no sense.
func (c *OptimizeCommand) CanExecute(ctx context.Context, _ command.Env) (bool, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	if p.Status != StatusRunning {
		return false, fmt.Errorf("process %d is %s, not running", c.pid, p.Status)
	}
	return true, nil
}

func (c *OptimizeCommand) Execute(ctx context.Context, _ command.Env) (any, error) {
	p, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return nil, err
	}
	snapshot := p
	c.prev = &snapshot

	p.CPU *= 1 - optimizeTrim
	p.Memory *= 1 - optimizeTrim
	p.Stability += optimizeStabilityGain
	if p.Stability > 1 {
		p.Stability = 1
	}
	if err := c.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *OptimizeCommand) CanUndo(ctx context.Context, _ command.Env) (bool, error) {
	if c.prev == nil {
		return false, nil
	}
	_, err := c.store.Get(ctx, c.pid)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *OptimizeCommand) Undo(ctx context.Context, _ command.Env) (any, error) {
	if c.prev == nil {
		return nil, fmt.Errorf("optimize process %d: no snapshot to restore", c.pid)
	}
	if err := c.store.Update(ctx, *c.prev); err != nil {
		return nil, err
	}
	restored := *c.prev
	c.prev = nil
	return restored, nil
}

// ScanCommand surveys the process table. Read-only, so it implements
// only the base contract: a scan cannot be undone and never needs to be.
type ScanCommand struct {
	command.Base

	store *Store
}

func NewScanCommand(store *Store) *ScanCommand {
	return &ScanCommand{store: store}
}

func (c *ScanCommand) Kind() string { return "mind.scan" }

func (c *ScanCommand) Description() string { return "scan all processes" }

func (c *ScanCommand) CanExecute(context.Context, command.Env) (bool, error) {
	return true, nil
}

func (c *ScanCommand) Execute(ctx context.Context, _ command.Env) (any, error) {
	procs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	report := ScanReport{Total: len(procs)}
	var stability float64
	for _, p := range procs {
		stability += p.Stability
		switch p.Status {
		case StatusRunning:
			report.Running++
		case StatusSleeping:
			report.Sleeping++
		case StatusTerminated:
			report.Terminated++
		}
	}
	if report.Total > 0 {
		report.MeanStability = stability / float64(report.Total)
	}
	return report, nil
}
