package engine

import "time"

// MetricsSnapshot is a point-in-time copy of the engine's aggregate
// counters. Snapshots are values; mutating one has no effect on the
// engine.
type MetricsSnapshot struct {
	TotalExecutions      int64
	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration
	FailedExecutions     int64
	UndoOperations       int64
	RedoOperations       int64
	BatchOperations      int64
}

// metrics accumulates the engine's running counters. It is owned by the
// Executor and mutated only from its entry points; the only external
// view is the snapshot copy.
type metrics struct {
	totalExecutions  int64
	totalExecTime    time.Duration
	failedExecutions int64
	undoOps          int64
	redoOps          int64
	batchOps         int64
}

// recordExecution counts one command execution attempt that reached the
// primary operation, successful or not.
func (m *metrics) recordExecution(d time.Duration, success bool) {
	m.totalExecutions++
	m.totalExecTime += d
	if !success {
		m.failedExecutions++
	}
}

func (m *metrics) snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		TotalExecutions:    m.totalExecutions,
		TotalExecutionTime: m.totalExecTime,
		FailedExecutions:   m.failedExecutions,
		UndoOperations:     m.undoOps,
		RedoOperations:     m.redoOps,
		BatchOperations:    m.batchOps,
	}
	if m.totalExecutions > 0 {
		s.AverageExecutionTime = m.totalExecTime / time.Duration(m.totalExecutions)
	}
	return s
}
