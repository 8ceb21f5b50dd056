package flowsim

// eventlog.go holds the bounded, human-readable record of the events
// of a simulation that an instructor watches scroll by

import (
	"fmt"

	"github.com/google/uuid"
)

// Severity classifies a log entry for display
type Severity string

const (
	InfoSev    Severity = "info"
	SuccessSev Severity = "success"
	ErrorSev   Severity = "error"
)

// DefaultLogSize is the number of entries an EventLog keeps
const DefaultLogSize int = 50

// LogEntry is one line of the event log.  Timestamp is simulated ms
type LogEntry struct {
	ID        string   `json:"id" yaml:"id"`
	Timestamp float64  `json:"timestamp" yaml:"timestamp"`
	Message   string   `json:"message" yaml:"message"`
	Severity  Severity `json:"severity" yaml:"severity"`
}

// String formats the entry the way the CLI prints it
func (le LogEntry) String() string {
	return fmt.Sprintf("%10.0fms %-7s %s", le.Timestamp, le.Severity, le.Message)
}

// EventLog keeps the most recent entries appended to it, oldest first.
// It is not safe for concurrent use; Simulation serializes access
type EventLog struct {
	size    int
	entries []LogEntry
}

// CreateEventLog is a constructor.  A non-positive size selects DefaultLogSize
func CreateEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &EventLog{size: size, entries: make([]LogEntry, 0, size)}
}

// Append adds an entry, evicting the oldest when the log is full
func (el *EventLog) Append(entry LogEntry) {
	if len(entry.ID) == 0 {
		entry.ID = uuid.NewString()
	}
	el.entries = append(el.entries, entry)
	if len(el.entries) > el.size {
		el.entries = el.entries[len(el.entries)-el.size:]
	}
}

// Add builds and appends an entry
func (el *EventLog) Add(timestamp float64, sev Severity, msg string) LogEntry {
	entry := LogEntry{ID: uuid.NewString(), Timestamp: timestamp, Message: msg, Severity: sev}
	el.Append(entry)
	return entry
}

// Entries returns a copy of the retained entries, oldest first
func (el *EventLog) Entries() []LogEntry {
	cpy := make([]LogEntry, len(el.entries))
	copy(cpy, el.entries)
	return cpy
}

// Replace discards the current entries and keeps the most recent of those given
func (el *EventLog) Replace(entries []LogEntry) {
	el.entries = make([]LogEntry, 0, el.size)
	for _, entry := range entries {
		el.Append(entry)
	}
}

// Len is the number of retained entries
func (el *EventLog) Len() int {
	return len(el.entries)
}

// Clear empties the log
func (el *EventLog) Clear() {
	el.entries = el.entries[:0]
}
