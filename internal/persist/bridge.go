// Package persist moves room snapshots between memory and durable
// storage. Saves are debounced: a flush happens only after a quiet
// period with no further mutations, plus one final flush on teardown.
package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/corkboard-dev/corkboard/internal/canvas"
)

// DefaultSaveDelay is the quiet period before a snapshot is flushed.
const DefaultSaveDelay = 2 * time.Second

// Store is the external persistence collaborator: durable load/save
// of a canvas snapshot keyed by room id.
type Store interface {
	LoadSnapshot(ctx context.Context, roomID string) ([]canvas.Element, error)
	SaveSnapshot(ctx context.Context, roomID string, elements []canvas.Element) error
}

// SaveError reports a failed flush. The in-memory state stays
// authoritative; the save is retried on the next debounce cycle.
type SaveError struct {
	RoomID string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save snapshot for room %s: %v", e.RoomID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Bridge observes element-store mutations for one room and flushes
// the latest snapshot after the quiet period.
type Bridge struct {
	store  Store
	roomID string
	delay  time.Duration
	clock  quartz.Clock
	logger slog.Logger

	mu     sync.Mutex
	latest []canvas.Element
	gen    uint64
	dirty  bool
	timer  *quartz.Timer
	closed bool
}

type BridgeOption func(*Bridge)

// WithClock substitutes the timer source, for tests.
func WithClock(clock quartz.Clock) BridgeOption {
	return func(b *Bridge) { b.clock = clock }
}

// WithDelay overrides the quiet period.
func WithDelay(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.delay = d }
}

func NewBridge(store Store, roomID string, logger slog.Logger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:  store,
		roomID: roomID,
		delay:  DefaultSaveDelay,
		clock:  quartz.NewReal(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Notify records the latest snapshot and (re)starts the quiet-period
// timer. Each call pushes the pending flush further out.
func (b *Bridge) Notify(snapshot []canvas.Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = snapshot
	b.gen++
	b.dirty = true
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.delay, b.flushTimer)
	} else {
		b.timer.Reset(b.delay)
	}
}

func (b *Bridge) flushTimer() {
	if err := b.Flush(context.Background()); err != nil {
		// Reported, not fatal: memory stays authoritative and the next
		// mutation schedules another attempt.
		b.logger.Warn(context.Background(), "debounced save failed",
			slog.F("room_id", b.roomID), slog.Error(err))
	}
}

// Flush writes the pending snapshot now. A no-op when nothing changed
// since the last successful save.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	snapshot, gen := b.latest, b.gen
	b.mu.Unlock()

	if err := b.store.SaveSnapshot(ctx, b.roomID, snapshot); err != nil {
		return &SaveError{RoomID: b.roomID, Err: err}
	}

	b.mu.Lock()
	// A Notify that raced the save leaves dirty set for the next cycle.
	if b.gen == gen {
		b.dirty = false
	}
	b.mu.Unlock()

	b.logger.Debug(ctx, "snapshot saved",
		slog.F("room_id", b.roomID), slog.F("elements", len(snapshot)))
	return nil
}

// Close performs the final flush and stops the timer. The bridge
// accepts no further notifications afterwards.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()

	return b.Flush(ctx)
}
