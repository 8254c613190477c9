package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/regionedit/snapshot"
)

func snap(gen int) *snapshot.Snapshot {
	return snapshot.New([]byte(fmt.Sprintf("v%d", gen)), uint64(gen), snapshot.Options{})
}

func TestPushMovesIndex(t *testing.T) {
	h := New(snap(0), 0)
	if h.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d", h.Capacity())
	}
	for n := 1; n <= 5; n++ {
		h.Push(snap(n))
		if h.Index() != n || h.Len() != n+1 {
			t.Fatalf("after %d pushes: index %d len %d", n, h.Index(), h.Len())
		}
		if h.Current().Generation() != uint64(n) {
			t.Fatalf("current generation = %d", h.Current().Generation())
		}
	}
}

func TestUndoRedo(t *testing.T) {
	h := New(snap(0), 4)
	if _, err := h.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("undo at start: %v", err)
	}
	if _, err := h.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("redo at end: %v", err)
	}
	h.Push(snap(1))
	h.Push(snap(2))

	s, err := h.Undo()
	if err != nil || s.Generation() != 1 {
		t.Fatalf("undo = %v %v", s, err)
	}
	s, err = h.Redo()
	if err != nil || s.Generation() != 2 {
		t.Fatalf("redo = %v %v", s, err)
	}
	if h.CanRedo() || !h.CanUndo() {
		t.Fatalf("can undo %v can redo %v", h.CanUndo(), h.CanRedo())
	}
}

func TestPushTruncatesRedo(t *testing.T) {
	h := New(snap(0), 0)
	h.Push(snap(1))
	h.Push(snap(2))
	if _, err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	h.Push(snap(3))
	if h.Len() != h.Index()+1 || h.Len() != 3 {
		t.Fatalf("len %d index %d", h.Len(), h.Index())
	}
	if _, err := h.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("redo after push: %v", err)
	}
	s, _ := h.Undo()
	if s.Generation() != 1 {
		t.Fatalf("undo reached generation %d", s.Generation())
	}
}

func TestEvictsOldest(t *testing.T) {
	h := New(snap(0), 3)
	for n := 1; n <= 10; n++ {
		h.Push(snap(n))
	}
	if h.Len() != 3 || h.Index() != 2 || h.Current().Generation() != 10 {
		t.Fatalf("len %d index %d current %d", h.Len(), h.Index(), h.Current().Generation())
	}
	h.Undo()
	s, _ := h.Undo()
	if s.Generation() != 8 {
		t.Fatalf("oldest kept = %d", s.Generation())
	}
	if _, err := h.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("undo past the oldest: %v", err)
	}
}

func TestClampCapacity(t *testing.T) {
	cases := map[int]int{0: DefaultCapacity, 1: MinCapacity, -5: MinCapacity, 2: 2, 40: 40, 65: MaxCapacity}
	for in, want := range cases {
		if got := ClampCapacity(in); got != want {
			t.Fatalf("ClampCapacity(%d) = %d, want %d", in, got, want)
		}
	}
}
