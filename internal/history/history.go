// Package history keeps local undo/redo state as full canvas
// snapshots. Snapshots trade memory for correctness: restoring one can
// never mis-apply an inverse operation, and canvases top out at a few
// thousand elements, so the cost stays small.
package history

import "github.com/corkboard-dev/corkboard/internal/canvas"

// Stack is a linear undo history: an ordered list of snapshots plus a
// cursor. Only local structural edits are committed; remote-applied
// edits never enter the stack.
type Stack struct {
	entries [][]canvas.Element
	cursor  int
}

// NewStack starts with a single empty snapshot so the first undo after
// the first edit lands on an empty canvas.
func NewStack() *Stack {
	return &Stack{
		entries: [][]canvas.Element{nil},
		cursor:  0,
	}
}

// Commit records a new snapshot after a local edit. Any redo entries
// beyond the cursor are discarded: a fresh edit invalidates redo.
func (s *Stack) Commit(snapshot []canvas.Element) {
	s.entries = append(s.entries[:s.cursor+1], snapshot)
	s.cursor = len(s.entries) - 1
}

// Undo steps the cursor back and returns the snapshot to restore.
// At the oldest entry it is a no-op and returns ok=false.
func (s *Stack) Undo() ([]canvas.Element, bool) {
	if s.cursor <= 0 {
		return nil, false
	}
	s.cursor--
	return s.entries[s.cursor], true
}

// Redo steps the cursor forward and returns the snapshot to restore.
// At the newest entry it is a no-op and returns ok=false.
func (s *Stack) Redo() ([]canvas.Element, bool) {
	if s.cursor >= len(s.entries)-1 {
		return nil, false
	}
	s.cursor++
	return s.entries[s.cursor], true
}

func (s *Stack) CanUndo() bool {
	return s.cursor > 0
}

func (s *Stack) CanRedo() bool {
	return s.cursor < len(s.entries)-1
}

// Clear resets to a single empty-snapshot entry.
func (s *Stack) Clear() {
	s.entries = [][]canvas.Element{nil}
	s.cursor = 0
}

func (s *Stack) Len() int {
	return len(s.entries)
}

func (s *Stack) Cursor() int {
	return s.cursor
}
