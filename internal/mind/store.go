// Package mind is the demo domain driven through the execution engine:
// a SQLite-backed table of "mental processes" that the psychectl
// commands mutate and restore.
//
// The store is deliberately small. It exists to give the reversible
// commands real state to snapshot and put back, and to give the REPL
// something to show.
package mind

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Process statuses. The schema CHECK constraint enforces the same set.
const (
	StatusRunning    = "running"
	StatusSleeping   = "sleeping"
	StatusTerminated = "terminated"
)

// ErrProcessNotFound is returned when a PID has no row.
var ErrProcessNotFound = errors.New("process not found")

// Process is one row of the processes table. Cpu and Memory are
// percentages; Stability is a 0..1 coherence score.
type Process struct {
	PID       int
	Name      string
	Status    string
	CPU       float64
	Memory    float64
	Stability float64
}

// Store provides durable storage for the mental process table.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies
// the schema. Use ":memory:" for an ephemeral session.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps ":memory:" databases alive: each
	// new connection to ":memory:" would otherwise get a fresh database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Seed inserts or replaces a set of processes. Used by the REPL startup
// and the scenario harness to establish a known starting state.
func (s *Store) Seed(ctx context.Context, procs []Process) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO processes (pid, name, status, cpu, memory, stability)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	for _, p := range procs {
		if _, err := stmt.ExecContext(ctx, p.PID, p.Name, p.Status, p.CPU, p.Memory, p.Stability); err != nil {
			return fmt.Errorf("seed pid %d: %w", p.PID, err)
		}
	}

	return tx.Commit()
}

// Get returns the process with the given PID, or ErrProcessNotFound.
func (s *Store) Get(ctx context.Context, pid int) (Process, error) {
	var p Process
	err := s.db.QueryRowContext(ctx, `
		SELECT pid, name, status, cpu, memory, stability
		FROM processes WHERE pid = ?
	`, pid).Scan(&p.PID, &p.Name, &p.Status, &p.CPU, &p.Memory, &p.Stability)
	if errors.Is(err, sql.ErrNoRows) {
		return Process{}, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	if err != nil {
		return Process{}, fmt.Errorf("get pid %d: %w", pid, err)
	}
	return p, nil
}

// List returns all processes ordered by PID.
func (s *Store) List(ctx context.Context) ([]Process, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, name, status, cpu, memory, stability
		FROM processes ORDER BY pid
	`)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var procs []Process
	for rows.Next() {
		var p Process
		if err := rows.Scan(&p.PID, &p.Name, &p.Status, &p.CPU, &p.Memory, &p.Stability); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}
	return procs, nil
}

// Update writes the full row back. The commands use this with a
// previously captured snapshot to restore state on undo.
func (s *Store) Update(ctx context.Context, p Process) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processes SET name = ?, status = ?, cpu = ?, memory = ?, stability = ?
		WHERE pid = ?
	`, p.Name, p.Status, p.CPU, p.Memory, p.Stability, p.PID)
	if err != nil {
		return fmt.Errorf("update pid %d: %w", p.PID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pid %d: %w", p.PID, err)
	}
	if n == 0 {
		return fmt.Errorf("pid %d: %w", p.PID, ErrProcessNotFound)
	}
	return nil
}
