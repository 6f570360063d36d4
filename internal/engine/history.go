package engine

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/psychectl/psyche/internal/command"
)

// DefaultCapacity is the history ledger bound used when none is configured.
const DefaultCapacity = 50

// EntryKind distinguishes ledger entries.
type EntryKind string

const (
	// EntryCommand records a single top-level command execution.
	EntryCommand EntryKind = "command"
	// EntryBatch records a whole batch executed as one unit.
	EntryBatch EntryKind = "batch"
)

// Entry records one top-level execution in the history ledger.
//
// The Command field is a borrowed reference to the caller's command, kept
// so diagnostic tooling can inspect it; batch entries carry member
// descriptions instead.
type Entry struct {
	Kind        EntryKind
	CommandKind string // empty for batch entries
	Description string
	BatchID     string   // batch entries only
	Members     []string // member descriptions, batch entries only
	Command     command.Command
	Result      any
	Timestamp   time.Time
	Duration    time.Duration
	Success     bool
}

// Query filters history searches. Zero-valued fields match everything.
type Query struct {
	// Kind matches the command kind exactly ("mind.kill").
	Kind string
	// Since matches entries with Timestamp >= Since.
	Since time.Time
	// SuccessOnly drops unsuccessful entries.
	SuccessOnly bool
	// Text matches a case-insensitive, Unicode-normalized substring of
	// the entry description.
	Text string
}

// ledger is the append-only, size-bounded record of past top-level
// executions. Oldest entries are evicted first once capacity is
// exceeded, so len(entries) <= capacity holds after every mutation.
type ledger struct {
	capacity int
	entries  []Entry
}

func newLedger(capacity int) *ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &ledger{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// append adds an entry, evicting from the front when over capacity.
func (l *ledger) append(e Entry) {
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		// Shift in place and zero the vacated tail so evicted entries'
		// command references become collectable.
		copy(l.entries, l.entries[over:])
		for i := len(l.entries) - over; i < len(l.entries); i++ {
			l.entries[i] = Entry{}
		}
		l.entries = l.entries[:len(l.entries)-over]
	}
}

// tail returns a copy of the most recent entries. limit <= 0 returns all.
func (l *ledger) tail(limit int) []Entry {
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// search returns copies of entries matching q, oldest first.
func (l *ledger) search(q Query) []Entry {
	needle := canonicalText(q.Text)
	var out []Entry
	for _, e := range l.entries {
		if q.Kind != "" && e.CommandKind != q.Kind {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if q.SuccessOnly && !e.Success {
			continue
		}
		if needle != "" && !strings.Contains(canonicalText(e.Description), needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (l *ledger) clear() {
	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.entries = l.entries[:0]
}

func (l *ledger) len() int { return len(l.entries) }

// canonicalText normalizes free text for search comparison:
// NFC normalization folds composed/decomposed forms together, then
// lowercasing makes the match case-insensitive.
func canonicalText(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFC.String(s))
}
