// Package drawing tracks other authors' in-progress freehand strokes.
// Active paths are ephemeral: they exist only between a start and end
// event, never enter history, and are never persisted. Committing the
// finished stroke as an element is the author's job, over the regular
// element path.
package drawing

import "github.com/corkboard-dev/corkboard/internal/canvas"

// ActivePath is one author's uncommitted stroke.
type ActivePath struct {
	UserID   string
	Tool     string
	Settings canvas.Style
	Points   []canvas.Point
}

// Tracker holds at most one active path per author. It is confined to
// its owning session loop and needs no locking.
type Tracker struct {
	paths map[string]*ActivePath
}

func NewTracker() *Tracker {
	return &Tracker{
		paths: make(map[string]*ActivePath),
	}
}

// Start opens a path for the author, discarding any incomplete path
// the same author left behind.
func (t *Tracker) Start(userID string, point canvas.Point, tool string, settings canvas.Style) {
	t.paths[userID] = &ActivePath{
		UserID:   userID,
		Tool:     tool,
		Settings: settings,
		Points:   []canvas.Point{point},
	}
}

// Continue appends to the author's path. Without a prior start this is
// a no-op; continue events can arrive late or out of order and are
// lossy-tolerant.
func (t *Tracker) Continue(userID string, point canvas.Point) bool {
	p, ok := t.paths[userID]
	if !ok {
		return false
	}
	p.Points = append(p.Points, point)
	return true
}

// End closes and discards the author's path.
func (t *Tracker) End(userID string) {
	delete(t.paths, userID)
}

// Discard drops all stroke state for an author who left the room.
func (t *Tracker) Discard(userID string) {
	delete(t.paths, userID)
}

// Get returns a copy of the author's active path.
func (t *Tracker) Get(userID string) (ActivePath, bool) {
	p, ok := t.paths[userID]
	if !ok {
		return ActivePath{}, false
	}
	out := *p
	out.Points = make([]canvas.Point, len(p.Points))
	copy(out.Points, p.Points)
	return out, true
}

func (t *Tracker) Active() int {
	return len(t.paths)
}

// Users lists the authors with an open path.
func (t *Tracker) Users() []string {
	out := make([]string, 0, len(t.paths))
	for id := range t.paths {
		out = append(out, id)
	}
	return out
}

func (t *Tracker) Reset() {
	t.paths = make(map[string]*ActivePath)
}
