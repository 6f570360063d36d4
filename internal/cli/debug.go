package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psychectl/psyche/internal/command"
	"github.com/psychectl/psyche/internal/config"
	"github.com/psychectl/psyche/internal/engine"
	"github.com/psychectl/psyche/internal/mind"
)

// DebugOptions holds flags for the debug command.
type DebugOptions struct {
	*RootOptions
	Database string

	// Clock and IDGenerator allow overriding the engine's time source and
	// batch ID generator (for testing). Nil means production defaults.
	Clock       engine.Clock
	IDGenerator engine.BatchIDGenerator

	// Input overrides stdin (for testing).
	Input io.Reader
}

// NewDebugCommand creates the debug command: an interactive session
// against a mind database.
func NewDebugCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DebugOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Start an interactive debugging session",
		Long: `Start an interactive session against a mind database.

The session reads one directive per line:

  ps                        list processes
  scan                      survey the process table
  kill <pid>                terminate a process (reversible)
  restart <pid>             revive a sleeping or terminated process
  optimize <pid>            trim a running process's resource usage
  batch <op>:<pid> ...      run several directives atomically
  undo                      reverse the most recent operation
  redo                      re-apply the most recently undone operation
  history [limit]           show the execution ledger
  search <text>             search ledger descriptions
  stacks                    show the undo/redo stacks
  metrics                   show aggregate execution metrics
  clear history|stacks      discard the ledger or the stacks
  quit                      end the session

Example:
  psychectl debug --db ./mind.db
  psychectl debug --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite mind database (defaults to config, then :memory:)")

	return cmd
}

func runDebug(opts *DebugOptions, cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Database != "" {
		cfg.MindDB = opts.Database
	}

	logLevel := cfg.SlogLevel()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("opening mind database", "path", cfg.MindDB)
	store, err := mind.Open(cfg.MindDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open mind database", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("error closing mind database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := seedIfEmpty(ctx, store); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed mind database", err)
	}

	engineOpts := []engine.Option{
		engine.WithHistoryCapacity(cfg.HistoryCapacity),
		engine.WithLogger(logger),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	x := engine.New(engineOpts...)
	defer x.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Drain notifications in the background. The subscription drops on
	// overflow, so a slow terminal never stalls the engine.
	events := x.Subscribe(cfg.EventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range events {
			logger.Debug("event",
				"event", string(n.Kind),
				"command", n.CommandKind,
				"batch_id", n.BatchID,
				"duration", n.Duration,
			)
		}
	}()

	sess := &session{
		engine: x,
		store:  store,
		out:    formatter,
	}

	input := opts.Input
	if input == nil {
		input = cmd.InOrStdin()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "psychectl debug session. Type 'help' for directives, 'quit' to end.")

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		quit, err := sess.handle(ctx, line)
		if err != nil {
			reportEngineError(formatter, err)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return WrapExitError(ExitCommandError, "failed reading input", err)
	}

	x.Close()
	<-done
	logger.Info("session ended")
	return nil
}

// defaultMind is the process table seeded into an empty database so a
// fresh session has something to debug.
func defaultMind() []mind.Process {
	return []mind.Process{
		{PID: 1, Name: "ego", Status: mind.StatusRunning, CPU: 35, Memory: 30, Stability: 0.9},
		{PID: 2, Name: "anxiety", Status: mind.StatusRunning, CPU: 85, Memory: 60, Stability: 0.3},
		{PID: 3, Name: "daydream", Status: mind.StatusSleeping, CPU: 1, Memory: 12, Stability: 0.7},
		{PID: 4, Name: "self_critic", Status: mind.StatusRunning, CPU: 55, Memory: 40, Stability: 0.5},
		{PID: 5, Name: "curiosity", Status: mind.StatusRunning, CPU: 20, Memory: 25, Stability: 0.95},
	}
}

func seedIfEmpty(ctx context.Context, store *mind.Store) error {
	procs, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(procs) > 0 {
		return nil
	}
	return store.Seed(ctx, defaultMind())
}

// reportEngineError renders an engine failure without ending the session.
func reportEngineError(out *OutputFormatter, err error) {
	var oe *engine.OpError
	if errors.As(err, &oe) {
		var details interface{}
		if oe.Rollback != nil {
			details = oe.Rollback
		}
		out.Error(string(oe.Code), oe.Error(), details)
		return
	}
	out.Error("INTERNAL", err.Error(), nil)
}

// session is one interactive debugging session: an engine, a store, and
// a formatter. handle processes a single directive line.
type session struct {
	engine *engine.Executor
	store  *mind.Store
	out    *OutputFormatter
}

// handle executes one directive. The bool result reports whether the
// session should end.
func (s *session) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	directive, args := fields[0], fields[1:]

	switch directive {
	case "quit", "exit":
		return true, nil

	case "help":
		s.printHelp()
		return false, nil

	case "ps":
		return false, s.listProcesses(ctx)

	case "scan", "kill", "restart", "optimize":
		cmd, err := s.buildCommand(directive, args)
		if err != nil {
			return false, err
		}
		res, err := s.engine.Execute(ctx, cmd, nil)
		if err != nil {
			return false, err
		}
		return false, s.out.Success(res)

	case "batch":
		return false, s.runBatch(ctx, args)

	case "undo":
		res, err := s.engine.Undo(ctx, nil)
		if err != nil {
			return false, err
		}
		return false, s.out.Success(res)

	case "redo":
		res, err := s.engine.Redo(ctx, nil)
		if err != nil {
			return false, err
		}
		return false, s.out.Success(res)

	case "history":
		limit := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return false, fmt.Errorf("history limit must be a number, got %q", args[0])
			}
			limit = n
		}
		s.printHistory(s.engine.History(limit))
		return false, nil

	case "search":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: search <text>")
		}
		s.printHistory(s.engine.SearchHistory(engine.Query{Text: strings.Join(args, " ")}))
		return false, nil

	case "stacks":
		s.printStacks()
		return false, nil

	case "metrics":
		return false, s.out.Success(s.engine.Metrics())

	case "clear":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: clear history|stacks")
		}
		switch args[0] {
		case "history":
			s.engine.ClearHistory()
		case "stacks":
			s.engine.ClearStacks()
		default:
			return false, fmt.Errorf("usage: clear history|stacks")
		}
		return false, s.out.Success("cleared " + args[0])

	default:
		return false, fmt.Errorf("unknown directive %q; type 'help'", directive)
	}
}

// buildCommand maps a directive name to a domain command.
func (s *session) buildCommand(directive string, args []string) (command.Command, error) {
	if directive == "scan" {
		return mind.NewScanCommand(s.store), nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: %s <pid>", directive)
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: pid must be a number, got %q", directive, args[0])
	}
	switch directive {
	case "kill":
		return mind.NewKillCommand(s.store, pid), nil
	case "restart":
		return mind.NewRestartCommand(s.store, pid), nil
	case "optimize":
		return mind.NewOptimizeCommand(s.store, pid), nil
	default:
		return nil, fmt.Errorf("unknown directive %q", directive)
	}
}

// runBatch parses "batch kill:1 optimize:4 ..." and executes the members
// as one atomic unit.
func (s *session) runBatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: batch <op>:<pid> [<op>:<pid> ...]")
	}
	cmds := make([]command.Command, 0, len(args))
	for _, spec := range args {
		op, pidStr, ok := strings.Cut(spec, ":")
		if op == "scan" && !ok {
			cmds = append(cmds, mind.NewScanCommand(s.store))
			continue
		}
		if !ok {
			return fmt.Errorf("batch member %q: want <op>:<pid>", spec)
		}
		cmd, err := s.buildCommand(op, []string{pidStr})
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}
	res, err := s.engine.ExecuteBatch(ctx, cmds, nil)
	if err != nil {
		return err
	}
	return s.out.Success(res)
}

func (s *session) listProcesses(ctx context.Context) error {
	procs, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	if s.out.Format == "json" {
		return s.out.Success(procs)
	}
	fmt.Fprintf(s.out.Writer, "%-6s %-12s %-12s %6s %6s %10s\n",
		"PID", "NAME", "STATUS", "CPU", "MEM", "STABILITY")
	for _, p := range procs {
		fmt.Fprintf(s.out.Writer, "%-6d %-12s %-12s %6.1f %6.1f %10.2f\n",
			p.PID, p.Name, p.Status, p.CPU, p.Memory, p.Stability)
	}
	return nil
}

func (s *session) printHistory(entries []engine.Entry) {
	if s.out.Format == "json" {
		s.out.Success(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out.Writer, "(history empty)")
		return
	}
	for i, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(s.out.Writer, "%3d  %s  %-8s %s [%s]\n",
			i+1, e.Timestamp.Format("15:04:05"), e.Kind, e.Description, status)
	}
}

func (s *session) printStacks() {
	if s.out.Format == "json" {
		s.out.Success(map[string]interface{}{
			"undo": s.engine.UndoStack(),
			"redo": s.engine.RedoStack(),
		})
		return
	}
	printStack := func(name string, summaries []engine.StackSummary) {
		fmt.Fprintf(s.out.Writer, "%s stack (%d):\n", name, len(summaries))
		for i := len(summaries) - 1; i >= 0; i-- {
			u := summaries[i]
			marker := " "
			if !u.CanUndoNow {
				marker = "!"
			}
			fmt.Fprintf(s.out.Writer, "  %s %s\n", marker, u.Description)
		}
	}
	printStack("undo", s.engine.UndoStack())
	printStack("redo", s.engine.RedoStack())
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out.Writer, `directives:
  ps                        list processes
  scan                      survey the process table
  kill <pid>                terminate a process (reversible)
  restart <pid>             revive a sleeping or terminated process
  optimize <pid>            trim a running process's resource usage
  batch <op>:<pid> ...      run several directives atomically
  undo / redo               reverse / re-apply operations
  history [limit]           show the execution ledger
  search <text>             search ledger descriptions
  stacks                    show the undo/redo stacks
  metrics                   show aggregate execution metrics
  clear history|stacks      discard the ledger or the stacks
  quit                      end the session`)
}
