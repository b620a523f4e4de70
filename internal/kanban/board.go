// Package kanban mirrors a task board over the same event stream the
// canvas rides on. The board is a second consumer of the room: it keeps
// its own state and its own optimistic-move discipline, but it never
// touches canvas history or the element store.
package kanban

import (
	"sort"

	"github.com/google/uuid"

	"github.com/corkboard-dev/corkboard/internal/protocol"
)

// Default column statuses, in display order.
var DefaultStatuses = []string{"todo", "in-progress", "done"}

// Emitter sends a board event to the room. Sessions plug their
// transport in here.
type Emitter func(ev protocol.Event)

// pendingMove remembers how to put a task back if the server rejects
// the optimistic move.
type pendingMove struct {
	fromStatus string
	fromPos    int
}

// Board is the local task-board replica. Like the canvas store it is
// not self-synchronized: all calls must come from the owning event
// loop.
type Board struct {
	userID   string
	emit     Emitter
	statuses []string
	tasks    map[string]*protocol.Task
	pending  map[string]pendingMove
}

func NewBoard(userID string, emit Emitter) *Board {
	return &Board{
		userID:   userID,
		emit:     emit,
		statuses: append([]string(nil), DefaultStatuses...),
		tasks:    make(map[string]*protocol.Task),
		pending:  make(map[string]pendingMove),
	}
}

// Statuses returns the column order.
func (b *Board) Statuses() []string {
	return append([]string(nil), b.statuses...)
}

func (b *Board) validStatus(status string) bool {
	for _, s := range b.statuses {
		if s == status {
			return true
		}
	}
	return false
}

// CreateTask adds a task to the tail of the given column and
// broadcasts it. Returns the new task id, or "" when the status is not
// a known column.
func (b *Board) CreateTask(title, status string) string {
	if !b.validStatus(status) {
		return ""
	}
	t := protocol.Task{
		ID:       uuid.NewString(),
		Title:    title,
		Status:   status,
		Position: len(b.Column(status)),
	}
	b.tasks[t.ID] = &t
	b.emit(protocol.TaskCreated{Task: t, UserID: b.userID})
	return t.ID
}

// UpdateTitle renames a task. Unknown ids are ignored.
func (b *Board) UpdateTitle(id, title string) {
	t, ok := b.tasks[id]
	if !ok {
		return
	}
	t.Title = title
	b.emit(protocol.TaskUpdated{Task: *t, UserID: b.userID})
}

// DeleteTask removes a task. Unknown ids are ignored.
func (b *Board) DeleteTask(id string) {
	if _, ok := b.tasks[id]; !ok {
		return
	}
	delete(b.tasks, id)
	delete(b.pending, id)
	b.emit(protocol.TaskDeleted{TaskID: id, UserID: b.userID})
}

// MoveTask applies the move locally right away and broadcasts it. The
// previous placement is kept until the server either echoes the move to
// the others or answers with a rejection, in which case Revert puts the
// task back.
func (b *Board) MoveTask(id, toStatus string, position int) bool {
	t, ok := b.tasks[id]
	if !ok || !b.validStatus(toStatus) {
		return false
	}
	// Only the first pending move holds the true origin; a second move
	// before the first settles must still revert to where the task was
	// before any of them.
	if _, held := b.pending[id]; !held {
		b.pending[id] = pendingMove{fromStatus: t.Status, fromPos: t.Position}
	}
	from := t.Status
	b.place(t, toStatus, position)
	b.emit(protocol.TaskMoved{
		TaskID:     id,
		FromStatus: from,
		ToStatus:   toStatus,
		Position:   t.Position,
		UserID:     b.userID,
	})
	return true
}

// place puts a task at position within status, shifting neighbors so
// column positions stay dense.
func (b *Board) place(t *protocol.Task, status string, position int) {
	// Close the gap the task leaves behind before computing the
	// destination, so a move within one column sees dense positions.
	b.compact(t.Status, t.ID)
	dest := b.columnWithout(status, t.ID)
	if position < 0 {
		position = 0
	}
	if position > len(dest) {
		position = len(dest)
	}
	for _, other := range dest {
		if other.Position >= position {
			b.tasks[other.ID].Position++
		}
	}
	t.Status = status
	t.Position = position
}

// compact closes the gap a task left behind in its old column.
func (b *Board) compact(status, movedID string) {
	col := b.columnWithout(status, movedID)
	for i, t := range col {
		b.tasks[t.ID].Position = i
	}
}

// HandleEvent applies a remote board event. Events originated by this
// board's own user are ignored except for rejections, which are how
// the server talks back to the originator.
func (b *Board) HandleEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.TaskCreated:
		if e.UserID == b.userID {
			return
		}
		t := e.Task
		b.tasks[t.ID] = &t
	case protocol.TaskUpdated:
		if e.UserID == b.userID {
			return
		}
		t := e.Task
		b.tasks[t.ID] = &t
	case protocol.TaskDeleted:
		if e.UserID == b.userID {
			return
		}
		delete(b.tasks, e.TaskID)
		delete(b.pending, e.TaskID)
	case protocol.TaskMoved:
		if e.UserID == b.userID {
			// Server echo confirms our optimistic move.
			delete(b.pending, e.TaskID)
			return
		}
		if t, ok := b.tasks[e.TaskID]; ok {
			b.place(t, e.ToStatus, e.Position)
		}
	case protocol.TaskRejected:
		b.Revert(e.TaskID)
	}
}

// Revert undoes an unconfirmed optimistic move, restoring the task to
// where it sat before the move was attempted. No-op when nothing is
// pending for the id.
func (b *Board) Revert(id string) {
	pend, ok := b.pending[id]
	if !ok {
		return
	}
	delete(b.pending, id)
	t, ok := b.tasks[id]
	if !ok {
		return
	}
	b.place(t, pend.fromStatus, pend.fromPos)
}

// Task returns a copy of the task, if present.
func (b *Board) Task(id string) (protocol.Task, bool) {
	t, ok := b.tasks[id]
	if !ok {
		return protocol.Task{}, false
	}
	return *t, true
}

// Column returns the tasks of one status ordered by position.
func (b *Board) Column(status string) []protocol.Task {
	return b.columnWithout(status, "")
}

func (b *Board) columnWithout(status, excludeID string) []protocol.Task {
	var out []protocol.Task
	for _, t := range b.tasks {
		if t.Status == status && t.ID != excludeID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Len reports the total task count across all columns.
func (b *Board) Len() int { return len(b.tasks) }

// Replace swaps in an authoritative task set, dropping any pending
// optimistic moves.
func (b *Board) Replace(tasks []protocol.Task) {
	b.tasks = make(map[string]*protocol.Task, len(tasks))
	b.pending = make(map[string]pendingMove)
	for _, t := range tasks {
		t := t
		b.tasks[t.ID] = &t
	}
}
