// Package history keeps the bounded undo/redo list of document snapshots.
package history

import (
	"errors"
	"sync"

	"github.com/wudi/regionedit/snapshot"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Capacity limits.
const (
	DefaultCapacity = 16
	MinCapacity     = 2
	MaxCapacity     = 64
)

// History is an ordered list of snapshots with a cursor on the current one.
// Pushing discards everything after the cursor; when full, the oldest
// snapshot is evicted. The current snapshot is never evicted.
type History struct {
	mu       sync.RWMutex
	entries  []*snapshot.Snapshot
	index    int
	capacity int
}

// New creates a history whose only entry is initial. A capacity of zero
// means DefaultCapacity; others are clamped to [MinCapacity, MaxCapacity].
func New(initial *snapshot.Snapshot, capacity int) *History {
	return &History{
		entries:  []*snapshot.Snapshot{initial},
		capacity: ClampCapacity(capacity),
	}
}

// ClampCapacity applies the default and the limits to a requested capacity.
func ClampCapacity(capacity int) int {
	switch {
	case capacity == 0:
		return DefaultCapacity
	case capacity < MinCapacity:
		return MinCapacity
	case capacity > MaxCapacity:
		return MaxCapacity
	}
	return capacity
}

// Push makes s current, dropping any redo entries.
func (h *History) Push(s *snapshot.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.index+1], s)
	if excess := len(h.entries) - h.capacity; excess > 0 {
		// Remove oldest entries
		h.entries = append([]*snapshot.Snapshot(nil), h.entries[excess:]...)
	}
	h.index = len(h.entries) - 1
}

// Undo moves the cursor back and returns the snapshot now current.
func (h *History) Undo() (*snapshot.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return nil, ErrNothingToUndo
	}
	h.index--
	return h.entries[h.index], nil
}

// Redo moves the cursor forward and returns the snapshot now current.
func (h *History) Redo() (*snapshot.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries)-1 {
		return nil, ErrNothingToRedo
	}
	h.index++
	return h.entries[h.index], nil
}

// Current returns the current snapshot.
func (h *History) Current() *snapshot.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[h.index]
}

// Len returns the number of snapshots held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Index returns the position of the current snapshot.
func (h *History) Index() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index
}

// Capacity returns the maximum number of snapshots held.
func (h *History) Capacity() int { return h.capacity }

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool { return h.Index() > 0 }

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index < len(h.entries)-1
}
