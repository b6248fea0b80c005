// ABOUTME: Bounded linear undo/redo over document snapshots.
// ABOUTME: Pushing after an undo discards the redo tail; the oldest snapshot is evicted past the limit.

package history

import "sync"

// DefaultLimit is the number of snapshots retained when New is given zero.
const DefaultLimit = 20

// History holds snapshots and a cursor. Invariant: 0 <= index < len(snaps)
// whenever snaps is non-empty.
type History struct {
	mu    sync.RWMutex
	snaps []string
	index int
	limit int
}

// New creates a History retaining at most limit snapshots.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{limit: limit, index: -1}
}

// Push records doc as the newest snapshot. It is a no-op when doc equals
// the current snapshot.
func (h *History) Push(doc string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.index >= 0 && h.snaps[h.index] == doc {
		return
	}
	h.snaps = append(h.snaps[:h.index+1], doc)
	h.index++
	if len(h.snaps) > h.limit {
		h.snaps = h.snaps[1:]
		h.index--
	}
}

// Undo moves back one snapshot and returns it.
func (h *History) Undo() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index <= 0 {
		return "", false
	}
	h.index--
	return h.snaps[h.index], true
}

// Redo moves forward one snapshot and returns it.
func (h *History) Redo() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 || h.index >= len(h.snaps)-1 {
		return "", false
	}
	h.index++
	return h.snaps[h.index], true
}

// CanUndo reports whether Undo would move.
func (h *History) CanUndo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index > 0
}

// CanRedo reports whether Redo would move.
func (h *History) CanRedo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index >= 0 && h.index < len(h.snaps)-1
}

// Current returns the snapshot at the cursor.
func (h *History) Current() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.index < 0 {
		return "", false
	}
	return h.snaps[h.index], true
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snaps)
}

// State is a serializable copy of a History.
type State struct {
	Snapshots []string `json:"snapshots"`
	Index     int      `json:"index"`
}

// State returns a copy of the snapshots and cursor.
func (h *History) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return State{Snapshots: append([]string(nil), h.snaps...), Index: h.index}
}

// Restore replaces the history with s, clamping it to the limit and a valid cursor.
func (h *History) Restore(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snaps := append([]string(nil), s.Snapshots...)
	index := s.Index
	if over := len(snaps) - h.limit; over > 0 {
		snaps = snaps[over:]
		index -= over
	}
	switch {
	case len(snaps) == 0:
		index = -1
	case index < 0:
		index = 0
	case index >= len(snaps):
		index = len(snaps) - 1
	}
	h.snaps, h.index = snaps, index
}
