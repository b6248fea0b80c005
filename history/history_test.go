// ABOUTME: Tests for the bounded undo/redo history.
// ABOUTME: Covers linear undo/redo, redo-tail truncation, eviction at the limit, and restore clamping.

package history

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func mustUndo(t *testing.T, h *History) string {
	t.Helper()
	doc, ok := h.Undo()
	if !ok {
		t.Fatal("Undo reported nothing to undo")
	}
	return doc
}

func mustRedo(t *testing.T, h *History) string {
	t.Helper()
	doc, ok := h.Redo()
	if !ok {
		t.Fatal("Redo reported nothing to redo")
	}
	return doc
}

func expectState(t *testing.T, h *History, want State) {
	t.Helper()
	if got := h.State(); !reflect.DeepEqual(got, want) {
		t.Errorf("State = %+v, want %+v", got, want)
	}
}

func TestUndoRedoLinear(t *testing.T) {
	h := New(20)
	h.Push("A")
	h.Push("B")
	h.Push("C")

	for _, step := range []struct {
		do   func(*testing.T, *History) string
		want string
	}{{mustUndo, "B"}, {mustUndo, "A"}, {mustRedo, "B"}} {
		if got := step.do(t, h); got != step.want {
			t.Fatalf("got %q, want %q", got, step.want)
		}
	}

	mustUndo(t, h)
	h.Push("D")
	if h.CanRedo() {
		t.Error("pushing after undo must discard the redo path")
	}
	expectState(t, h, State{Snapshots: []string{"A", "D"}, Index: 1})
	if got := mustUndo(t, h); got != "A" {
		t.Errorf("undo = %q", got)
	}
	if got := mustRedo(t, h); got != "D" {
		t.Errorf("redo = %q", got)
	}
}

func TestPushSameDocumentIsNoop(t *testing.T) {
	h := New(20)
	h.Push("A")
	h.Push("A")
	if h.Len() != 1 || h.CanUndo() {
		t.Errorf("Len = %d, CanUndo = %v", h.Len(), h.CanUndo())
	}
}

func TestEmptyHistory(t *testing.T) {
	h := New(0)
	if _, ok := h.Undo(); ok {
		t.Error("Undo on empty history")
	}
	if _, ok := h.Redo(); ok {
		t.Error("Redo on empty history")
	}
	if _, ok := h.Current(); ok {
		t.Error("Current on empty history")
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("empty history claims it can move")
	}
}

func TestEvictsOldestPastLimit(t *testing.T) {
	h := New(DefaultLimit)
	for i := 1; i <= 21; i++ {
		h.Push(fmt.Sprintf("v%d", i))
	}
	if h.Len() != DefaultLimit {
		t.Fatalf("Len = %d", h.Len())
	}
	if cur, _ := h.Current(); cur != "v21" {
		t.Errorf("Current = %q", cur)
	}

	var last string
	steps := 0
	for h.CanUndo() {
		last = mustUndo(t, h)
		steps++
	}
	if steps != 19 || last != "v2" {
		t.Errorf("undid %d steps to %q; v1 must be evicted", steps, last)
	}

	for h.CanRedo() {
		last = mustRedo(t, h)
	}
	if last != "v21" {
		t.Errorf("redo ended at %q", last)
	}
}

func TestCanUndoCanRedoInvariant(t *testing.T) {
	h := New(3)
	for i := 0; i < 5; i++ {
		h.Push(fmt.Sprint(i))
		s := h.State()
		if h.CanUndo() != (s.Index > 0) {
			t.Errorf("push %d: CanUndo = %v at index %d", i, h.CanUndo(), s.Index)
		}
		if h.CanRedo() != (s.Index < len(s.Snapshots)-1) {
			t.Errorf("push %d: CanRedo = %v at index %d", i, h.CanRedo(), s.Index)
		}
		if len(s.Snapshots) > 3 {
			t.Errorf("push %d: %d snapshots over limit", i, len(s.Snapshots))
		}
	}
}

func TestRestoreClamps(t *testing.T) {
	h := New(2)
	h.Restore(State{Snapshots: []string{"a", "b", "c"}, Index: 9})
	expectState(t, h, State{Snapshots: []string{"b", "c"}, Index: 1})

	h.Restore(State{})
	if _, ok := h.Current(); ok {
		t.Error("restoring an empty state left a current document")
	}
}

func TestConcurrentPush(t *testing.T) {
	h := New(20)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Push(fmt.Sprint(i))
			h.CanUndo()
		}(i)
	}
	wg.Wait()
	if h.Len() != 20 {
		t.Errorf("Len = %d", h.Len())
	}
}
