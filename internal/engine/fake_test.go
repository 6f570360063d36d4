package engine

import (
	"context"
	"fmt"

	"github.com/psychectl/psyche/internal/command"
)

// fakeWorld is the domain state the fake commands mutate. Counters per
// name let tests verify state reversal precisely: executing increments,
// undoing decrements.
type fakeWorld struct {
	applied map[string]int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{applied: make(map[string]int)}
}

func (w *fakeWorld) count(name string) int { return w.applied[name] }

// fakeCmd is a reversible command with scriptable failure modes.
// It implements command.Reversible and command.UndoChecker.
type fakeCmd struct {
	command.Base
	kind  string
	name  string
	world *fakeWorld

	ineligible   bool
	eligErr      error
	execErr      error
	undoErr      error
	undoDenied   bool
	undoCheckErr error
}

var (
	_ command.Reversible  = (*fakeCmd)(nil)
	_ command.UndoChecker = (*fakeCmd)(nil)
)

func newFakeCmd(world *fakeWorld, name string) *fakeCmd {
	return &fakeCmd{kind: "test.fake", name: name, world: world}
}

func (c *fakeCmd) Kind() string        { return c.kind }
func (c *fakeCmd) Description() string { return fmt.Sprintf("fake command %s", c.name) }

func (c *fakeCmd) CanExecute(ctx context.Context, env command.Env) (bool, error) {
	if c.eligErr != nil {
		return false, c.eligErr
	}
	return !c.ineligible, nil
}

func (c *fakeCmd) Execute(ctx context.Context, env command.Env) (any, error) {
	if c.execErr != nil {
		return nil, c.execErr
	}
	c.world.applied[c.name]++
	return c.world.applied[c.name], nil
}

func (c *fakeCmd) Undo(ctx context.Context, env command.Env) (any, error) {
	if c.undoErr != nil {
		return nil, c.undoErr
	}
	c.world.applied[c.name]--
	return c.world.applied[c.name], nil
}

func (c *fakeCmd) CanUndo(ctx context.Context, env command.Env) (bool, error) {
	if c.undoCheckErr != nil {
		return false, c.undoCheckErr
	}
	return !c.undoDenied, nil
}

// envProbe records the Env it was executed with.
type envProbe struct {
	command.Base
	seen command.Env
}

var _ command.Command = (*envProbe)(nil)

func (c *envProbe) Kind() string        { return "test.envprobe" }
func (c *envProbe) Description() string { return "env probe" }

func (c *envProbe) CanExecute(ctx context.Context, env command.Env) (bool, error) {
	return true, nil
}

func (c *envProbe) Execute(ctx context.Context, env command.Env) (any, error) {
	c.seen = env
	return nil, nil
}

// irreversibleCmd executes but has no reversal capability.
type irreversibleCmd struct {
	command.Base
	name  string
	world *fakeWorld
}

var _ command.Command = (*irreversibleCmd)(nil)

func newIrreversibleCmd(world *fakeWorld, name string) *irreversibleCmd {
	return &irreversibleCmd{name: name, world: world}
}

func (c *irreversibleCmd) Kind() string        { return "test.irreversible" }
func (c *irreversibleCmd) Description() string { return fmt.Sprintf("irreversible command %s", c.name) }

func (c *irreversibleCmd) CanExecute(ctx context.Context, env command.Env) (bool, error) {
	return true, nil
}

func (c *irreversibleCmd) Execute(ctx context.Context, env command.Env) (any, error) {
	c.world.applied[c.name]++
	return c.world.applied[c.name], nil
}

// hookCmd delegates Execute to a caller-provided hook.
type hookCmd struct {
	command.Base
	hook func(ctx context.Context) (any, error)
}

var _ command.Command = (*hookCmd)(nil)

func (c *hookCmd) Kind() string        { return "test.hook" }
func (c *hookCmd) Description() string { return "hook command" }

func (c *hookCmd) CanExecute(ctx context.Context, env command.Env) (bool, error) {
	return true, nil
}

func (c *hookCmd) Execute(ctx context.Context, env command.Env) (any, error) {
	return c.hook(ctx)
}

// noCheckerCmd has Undo but no CanUndo: the engine assumes its reversal
// is always permitted.
type noCheckerCmd struct {
	command.Base
	name  string
	world *fakeWorld
}

var _ command.Reversible = (*noCheckerCmd)(nil)

func newNoCheckerCmd(world *fakeWorld, name string) *noCheckerCmd {
	return &noCheckerCmd{name: name, world: world}
}

func (c *noCheckerCmd) Kind() string        { return "test.nochecker" }
func (c *noCheckerCmd) Description() string { return fmt.Sprintf("unchecked command %s", c.name) }

func (c *noCheckerCmd) CanExecute(ctx context.Context, env command.Env) (bool, error) {
	return true, nil
}

func (c *noCheckerCmd) Execute(ctx context.Context, env command.Env) (any, error) {
	c.world.applied[c.name]++
	return c.world.applied[c.name], nil
}

func (c *noCheckerCmd) Undo(ctx context.Context, env command.Env) (any, error) {
	c.world.applied[c.name]--
	return c.world.applied[c.name], nil
}
