// Package tasklog holds the client-side task log: an append-only sequence
// of entries derived one-to-one from received stream events, owned by the
// UI layer and never read back by the protocol core.
package tasklog

import (
	"sync"
	"time"
)

// Entry is one immutable line in the task log.
type Entry struct {
	// ID is a monotonically increasing identifier, unique within one Log.
	ID int64
	// Time is the display timestamp assigned on append.
	Time time.Time
	// Kind mirrors the event type the entry was derived from.
	Kind string
	// Step and TotalSteps are set for progress and cancellation entries.
	Step       int
	TotalSteps int
	// Message is the human-readable line.
	Message string
}

// Log is an append-only entry store, safe for concurrent use. Entries are
// never mutated once appended.
type Log struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
	percent int
	now     func() time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds an entry and returns it. Progress entries update the derived
// completion percentage; a "complete" entry pins it at 100.
func (l *Log) Append(kind string, step, totalSteps int, message string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	e := Entry{
		ID:         l.nextID,
		Time:       l.now(),
		Kind:       kind,
		Step:       step,
		TotalSteps: totalSteps,
		Message:    message,
	}
	l.entries = append(l.entries, e)

	switch {
	case kind == "complete":
		l.percent = 100
	case kind == "progress" && totalSteps > 0:
		l.percent = step * 100 / totalSteps
	}
	return e
}

// Entries returns a copy of the log in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Percent returns the completion percentage derived from the most recent
// progress or complete entry. Zero for an empty log.
func (l *Log) Percent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.percent
}

// Clear removes all entries and resets the derived percentage. Entry IDs
// keep increasing across Clear so old and new entries never collide.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.percent = 0
}
