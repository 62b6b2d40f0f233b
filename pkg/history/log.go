// Package history records the ordered log of actions applied to a graph.
//
// Every user-visible mutation appends exactly one Entry. Operations that are
// composed of smaller logged steps use ReplaceLast so the final log still
// shows one entry per action: the composite operation overwrites the entry
// its last internal step produced, reusing that entry's sequence number.
//
// The in-memory Log is the source of truth. Archive mirrors it to SQLite for
// durability and offline inspection.
package history

import (
	"sync"
	"time"
)

// Entry is one recorded action. Vertex and edge counts are snapshots taken
// after the action completed.
type Entry struct {
	Seq       uint64        `json:"seq"`
	Operation string        `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
	Vertices  int           `json:"vertices"`
	Edges     int           `json:"edges"`
}

// Log is an append-only action log with strictly increasing sequence
// numbers. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	max     int // 0 = unbounded
}

// NewLog creates an empty, unbounded log.
func NewLog() *Log {
	return &Log{}
}

// NewCappedLog creates a log that retains at most max entries, dropping the
// oldest once the cap is reached. Sequence numbers keep increasing across
// drops. A max of 0 means unbounded.
func NewCappedLog(max int) *Log {
	return &Log{max: max}
}

// NewLogFrom creates a log seeded with existing entries, e.g. when restoring
// a graph from a snapshot. Entries are copied as given.
func NewLogFrom(entries []Entry) *Log {
	l := &Log{entries: make([]Entry, len(entries))}
	copy(l.entries, entries)
	return l
}

// Append records e with the next sequence number and returns the completed
// entry. The entry's Seq is always assigned by the log; Timestamp is set to
// now unless the caller provided one.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(e)
}

func (l *Log) appendLocked(e Entry) Entry {
	e.Seq = l.nextSeqLocked()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	return e
}

// ReplaceLast overwrites the most recently appended entry with e, reusing
// its sequence number. On an empty log it behaves like Append. This is how a
// composite action supersedes the log entry of its last internal step.
func (l *Log) ReplaceLast(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return l.appendLocked(e)
	}
	e.Seq = l.entries[len(l.entries)-1].Seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries[len(l.entries)-1] = e
	return e
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Seq returns the sequence number of the newest entry, or 0 when the log is
// empty.
func (l *Log) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Seq
}

// Last returns the newest entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Entries returns a copy of all retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) nextSeqLocked() uint64 {
	if len(l.entries) == 0 {
		return 1
	}
	return l.entries[len(l.entries)-1].Seq + 1
}
