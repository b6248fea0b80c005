// ABOUTME: Bounded log of runtime notifications reported by the sandboxed preview.
// ABOUTME: Keeps the most recent entries only; adding never blocks the caller for long.

package preview

import (
	"sync"
	"time"
)

// DefaultErrorLogSize is how many notifications a workspace keeps.
const DefaultErrorLogSize = 10

// Kind classifies a notification.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindReady   Kind = "ready"
)

// Notification is one message from the preview frame.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
	At      time.Time `json:"at"`
}

// ErrorLog is a ring of the latest notifications.
type ErrorLog struct {
	mu      sync.Mutex
	size    int
	entries []Notification
}

// NewErrorLog keeps at most size entries (DefaultErrorLogSize when size <= 0).
func NewErrorLog(size int) *ErrorLog {
	if size <= 0 {
		size = DefaultErrorLogSize
	}
	return &ErrorLog{size: size}
}

// Add appends n, dropping the oldest entry when full.
func (l *ErrorLog) Add(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, n)
	if over := len(l.entries) - l.size; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

// Entries returns a copy, oldest first.
func (l *ErrorLog) Entries() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification{}, l.entries...)
}

// Clear empties the log, e.g. when a new document is committed.
func (l *ErrorLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
