// Package session is the client-side collaboration core. One Session
// owns all state scoped to a joined room (element store, history,
// drawing tracker, roster, cursors) and runs every mutation on a
// single event loop, so none of it needs locking.
//
// Local actions apply optimistically, commit a history snapshot, and
// broadcast. Remote events apply to the same state without entering
// history.
package session

import (
	"context"
	"sync"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/drawing"
	"github.com/corkboard-dev/corkboard/internal/history"
	"github.com/corkboard-dev/corkboard/internal/persist"
	"github.com/corkboard-dev/corkboard/internal/presence"
	"github.com/corkboard-dev/corkboard/internal/protocol"
)

// User is the stable identity supplied by the identity provider.
type User struct {
	ID      string
	Profile presence.Profile
}

// Identity is the external identity/session collaborator.
type Identity interface {
	CurrentUser() User
}

// StaticIdentity satisfies Identity with a fixed user.
type StaticIdentity struct {
	User User
}

func (s StaticIdentity) CurrentUser() User { return s.User }

type Config struct {
	RoomID    string
	Identity  Identity
	Transport Transport
	Logger    slog.Logger

	// Persist is optional; when set the session runs a debounced
	// bridge that flushes after local mutations go quiet.
	Persist persist.Store

	// Clock drives the cursor throttle and save debounce. Defaults to
	// the real clock; tests inject a mock.
	Clock quartz.Clock
}

type Session struct {
	roomID    string
	user      User
	transport Transport
	logger    slog.Logger

	store    *canvas.Store
	hist     *history.Stack
	tracker  *drawing.Tracker
	roster   *presence.Roster
	cursors  *presence.CursorTable
	throttle *presence.Throttle
	bridge   *persist.Bridge
	clock    canvas.Clock

	actions  chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*Session, error) {
	if cfg.RoomID == "" {
		return nil, xerrors.New("session: room id is required")
	}
	if cfg.Identity == nil {
		return nil, xerrors.New("session: identity is required")
	}
	if cfg.Transport == nil {
		return nil, xerrors.New("session: transport is required")
	}
	wallClock := cfg.Clock
	if wallClock == nil {
		wallClock = quartz.NewReal()
	}

	s := &Session{
		roomID:    cfg.RoomID,
		user:      cfg.Identity.CurrentUser(),
		transport: cfg.Transport,
		logger:    cfg.Logger,
		store:     canvas.NewStore(),
		hist:      history.NewStack(),
		tracker:   drawing.NewTracker(),
		roster:    presence.NewRoster(),
		cursors:   presence.NewCursorTable(),
		actions:   make(chan func()),
		done:      make(chan struct{}),
	}

	s.throttle = presence.NewThrottle(wallClock, presence.DefaultCursorInterval, func(x, y float64) {
		s.emit(protocol.CursorUpdate{UserID: s.user.ID, X: x, Y: y, Profile: s.user.Profile})
	})

	if cfg.Persist != nil {
		s.bridge = persist.NewBridge(cfg.Persist, cfg.RoomID, cfg.Logger, persist.WithClock(wallClock))
	}

	return s, nil
}

// Join connects to the room and starts the event loop. The server
// answers with the roster and the authoritative snapshot; until those
// arrive the canvas is empty.
func (s *Session) Join(ctx context.Context) error {
	if err := s.transport.Join(ctx, s.roomID); err != nil {
		return xerrors.Errorf("join room %s: %w", s.roomID, err)
	}

	go s.run()

	s.emit(protocol.RoomJoin{RoomID: s.roomID, UserID: s.user.ID, Profile: s.user.Profile})
	s.do(func() {
		s.roster.Add(presence.Participant{ID: s.user.ID, Profile: s.user.Profile})
	})
	return nil
}

// run is the session's single-threaded event loop: local actions and
// inbound network events are interleaved as discrete, non-overlapping
// tasks.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.actions:
			fn()
		case ev := <-s.transport.Events():
			if ev != nil {
				s.handleRemote(ev)
			}
		}
	}
}

// do runs fn on the event loop and waits for it. After Leave it is a
// no-op, which makes late UI calls harmless.
func (s *Session) do(fn func()) {
	ran := make(chan struct{})
	select {
	case <-s.done:
		return
	case s.actions <- func() {
		fn()
		close(ran)
	}:
	}
	select {
	case <-ran:
	case <-s.done:
	}
}

func (s *Session) emit(ev protocol.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	if err := s.transport.Emit(ev); err != nil {
		// Non-fatal: the shared state self-heals on the next resync.
		s.logger.Warn(context.Background(), "emit failed",
			slog.F("kind", ev.Kind()), slog.Error(err))
	}
}

// commitLocal records a history snapshot and schedules a save after
// any local structural edit.
func (s *Session) commitLocal() {
	snapshot := s.store.Snapshot()
	s.hist.Commit(snapshot)
	if s.bridge != nil {
		s.bridge.Notify(snapshot)
	}
}

// AddElement creates an element locally and broadcasts it. Returns the
// element id.
func (s *Session) AddElement(e canvas.Element) string {
	if e.ID == "" {
		e.ID = canvas.NewID()
	}
	s.do(func() {
		ts := s.clock.Tick()
		if !s.store.Add(e, s.user.ID, ts) {
			return
		}
		stamped, _ := s.store.Get(e.ID)
		s.commitLocal()
		s.emit(protocol.ElementAdded{Element: stamped, UserID: s.user.ID})
	})
	return e.ID
}

// UpdateElement merges a partial patch into an element. Updating an
// element that no longer exists is a silent no-op.
func (s *Session) UpdateElement(id string, p canvas.Patch) {
	s.do(func() {
		ts := s.clock.Tick()
		if !s.store.Update(id, p, ts) {
			return
		}
		s.commitLocal()
		s.emit(protocol.ElementUpdated{ID: id, Patch: p, UserID: s.user.ID, UpdatedAt: ts})
	})
}

func (s *Session) DeleteElement(id string) {
	s.do(func() {
		if !s.store.Remove(id) {
			return
		}
		s.commitLocal()
		s.emit(protocol.ElementDeleted{ElementID: id, UserID: s.user.ID})
	})
}

// Undo restores the previous history snapshot and broadcasts it as the
// authoritative state; collaborators adopt it wholesale.
func (s *Session) Undo() {
	s.do(func() {
		snapshot, ok := s.hist.Undo()
		if !ok {
			return
		}
		s.store.Replace(snapshot)
		if s.bridge != nil {
			s.bridge.Notify(s.store.Snapshot())
		}
		s.emit(protocol.HistoryUndo{UserID: s.user.ID, Elements: s.store.Snapshot()})
	})
}

func (s *Session) Redo() {
	s.do(func() {
		snapshot, ok := s.hist.Redo()
		if !ok {
			return
		}
		s.store.Replace(snapshot)
		if s.bridge != nil {
			s.bridge.Notify(s.store.Snapshot())
		}
		s.emit(protocol.HistoryRedo{UserID: s.user.ID, Elements: s.store.Snapshot()})
	})
}

// ClearCanvas resets the store and history for every participant.
func (s *Session) ClearCanvas() {
	s.do(func() {
		s.store.Clear()
		s.hist.Clear()
		if s.bridge != nil {
			s.bridge.Notify(nil)
		}
		s.emit(protocol.StoreClear{UserID: s.user.ID})
	})
}

// StartStroke begins streaming a freehand stroke to peers. The stream
// never touches the element store; committing the finished stroke is a
// separate AddElement.
func (s *Session) StartStroke(point canvas.Point, tool string, settings canvas.Style) {
	s.emit(protocol.DrawingStart{UserID: s.user.ID, Point: point, Tool: tool, Settings: settings})
}

func (s *Session) ContinueStroke(point canvas.Point) {
	s.emit(protocol.DrawingContinue{UserID: s.user.ID, Point: point})
}

func (s *Session) EndStroke() {
	s.emit(protocol.DrawingEnd{UserID: s.user.ID})
}

// MoveCursor reports local pointer movement; emissions are coalesced
// by the throttle.
func (s *Session) MoveCursor(x, y float64) {
	s.throttle.Offer(x, y)
}

// Leave broadcasts departure, flushes pending state once, and stops
// the loop. No local events are emitted for this room afterwards.
func (s *Session) Leave(ctx context.Context) error {
	s.throttle.Close()
	s.emit(protocol.RoomLeave{RoomID: s.roomID, UserID: s.user.ID})

	s.do(func() {
		s.tracker.Reset()
		s.cursors.Reset()
	})
	s.stopOnce.Do(func() { close(s.done) })

	var err error
	if s.bridge != nil {
		err = s.bridge.Close(ctx)
	}
	if cerr := s.transport.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Resync discards the local element set and re-fetches the canonical
// snapshot by rejoining. Used after a dropped connection; no event-gap
// replay is attempted because no durable event log exists.
func (s *Session) Resync(ctx context.Context) error {
	s.do(func() {
		s.store.Clear()
		s.tracker.Reset()
		s.cursors.Reset()
	})
	if err := s.transport.Join(ctx, s.roomID); err != nil {
		return xerrors.Errorf("resync room %s: %w", s.roomID, err)
	}
	s.emit(protocol.RoomJoin{RoomID: s.roomID, UserID: s.user.ID, Profile: s.user.Profile})
	return nil
}

// Read-side accessors. Each runs on the loop so callers always see a
// consistent state.

func (s *Session) Snapshot() []canvas.Element {
	var out []canvas.Element
	s.do(func() { out = s.store.Snapshot() })
	return out
}

func (s *Session) Participants() []presence.Participant {
	var out []presence.Participant
	s.do(func() { out = s.roster.List() })
	return out
}

func (s *Session) Cursor(userID string) (presence.Cursor, bool) {
	var (
		cur presence.Cursor
		ok  bool
	)
	s.do(func() { cur, ok = s.cursors.Get(userID) })
	return cur, ok
}

func (s *Session) ActivePath(userID string) (drawing.ActivePath, bool) {
	var (
		path drawing.ActivePath
		ok   bool
	)
	s.do(func() { path, ok = s.tracker.Get(userID) })
	return path, ok
}

func (s *Session) CanUndo() bool {
	var ok bool
	s.do(func() { ok = s.hist.CanUndo() })
	return ok
}

func (s *Session) CanRedo() bool {
	var ok bool
	s.do(func() { ok = s.hist.CanRedo() })
	return ok
}
