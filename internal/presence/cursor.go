package presence

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Cursor is a user's last known pointer position. Last value wins;
// there is no history and no conflict logic.
type Cursor struct {
	UserID  string  `json:"userId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Profile Profile `json:"profile"`
}

// CursorTable stores the latest cursor per user. Entries expire only
// by removal when the user leaves.
type CursorTable struct {
	cursors map[string]Cursor
}

func NewCursorTable() *CursorTable {
	return &CursorTable{
		cursors: make(map[string]Cursor),
	}
}

func (c *CursorTable) Set(cur Cursor) {
	c.cursors[cur.UserID] = cur
}

func (c *CursorTable) Get(userID string) (Cursor, bool) {
	cur, ok := c.cursors[userID]
	return cur, ok
}

func (c *CursorTable) Remove(userID string) {
	delete(c.cursors, userID)
}

func (c *CursorTable) Len() int {
	return len(c.cursors)
}

// Users lists the user ids with a stored cursor.
func (c *CursorTable) Users() []string {
	out := make([]string, 0, len(c.cursors))
	for id := range c.cursors {
		out = append(out, id)
	}
	return out
}

func (c *CursorTable) Reset() {
	c.cursors = make(map[string]Cursor)
}

// DefaultCursorInterval matches the emission rate the UI throttles
// pointer events to. Bandwidth trade-off, not a correctness knob.
const DefaultCursorInterval = 50 * time.Millisecond

// Throttle coalesces local pointer movement to at most one emission
// per interval. The latest offered position wins; intermediate
// positions are dropped.
type Throttle struct {
	clock    quartz.Clock
	interval time.Duration
	emit     func(x, y float64)

	mu      sync.Mutex
	pending *[2]float64
	armed   bool
	closed  bool
}

func NewThrottle(clock quartz.Clock, interval time.Duration, emit func(x, y float64)) *Throttle {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Throttle{
		clock:    clock,
		interval: interval,
		emit:     emit,
	}
}

// Offer records a pointer position. The position actually emitted when
// the interval elapses is whichever one was offered last.
func (t *Throttle) Offer(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = &[2]float64{x, y}
	if t.armed {
		return
	}
	t.armed = true
	t.clock.AfterFunc(t.interval, t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.armed = false
	closed := t.closed
	t.mu.Unlock()

	if closed || pending == nil {
		return
	}
	t.emit(pending[0], pending[1])
}

// Close discards any pending emission. Used on leave: the session must
// synchronously stop emitting for the room.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
}
