// Package ws is the websocket fanout layer. The hub owns every live
// room: it admits clients, stamps element mutations through the room's
// logical clock, relays ephemeral streams untouched, and tears a room
// down (with a final save) when the last participant leaves.
package ws

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/persist"
	"github.com/corkboard-dev/corkboard/internal/presence"
	"github.com/corkboard-dev/corkboard/internal/protocol"
	"github.com/corkboard-dev/corkboard/internal/ratelimit"
	"github.com/corkboard-dev/corkboard/internal/room"
)

const snapshotLoadTimeout = 5 * time.Second

// Message is one decoded client event on its way through the hub.
type Message struct {
	RoomID string
	Event  protocol.Event
	Sender *Client
}

// liveRoom pairs a room's authoritative state with its connected
// clients, its debounced persistence bridge, and its in-memory task
// board.
type liveRoom struct {
	state   *room.Room
	bridge  *persist.Bridge
	clients map[*Client]bool
	tasks   map[string]protocol.Task
}

type Hub struct {
	store    persist.Store
	logger   slog.Logger
	clock    quartz.Clock
	limiters *ratelimit.ClientLimiters

	rooms map[string]*liveRoom
	mu    sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
}

type HubOption func(*Hub)

// WithClock substitutes the clock driving the per-room save debounce.
func WithClock(clock quartz.Clock) HubOption {
	return func(h *Hub) { h.clock = clock }
}

func NewHub(store persist.Store, logger slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		store:      store,
		logger:     logger,
		clock:      quartz.NewReal(),
		limiters:   ratelimit.NewClientLimiters(messagesPerSecond, messageBurst),
		rooms:      make(map[string]*liveRoom),
		broadcast:  make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes registrations, departures and room traffic until ctx
// is cancelled. Room state is only ever mutated from this goroutine;
// the read lock protects the occasional outside reader (stats, the
// idle sweeper).
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return
		case client := <-h.register:
			h.admit(ctx, client)
		case client := <-h.unregister:
			h.drop(ctx, client)
		case message := <-h.broadcast:
			h.dispatch(message)
		}
	}
}

// admit adds the client to its room, creating and seeding the room
// from the persisted snapshot when it is cold, then answers the join
// with the canonical state and tells everyone else.
func (h *Hub) admit(ctx context.Context, client *Client) {
	h.mu.Lock()
	lr, ok := h.rooms[client.roomID]
	if !ok {
		lr = h.openRoom(ctx, client.roomID)
		h.rooms[client.roomID] = lr
	}
	lr.clients[client] = true
	h.mu.Unlock()

	lr.state.Join(presence.Participant{ID: client.userID, Profile: client.profile})

	h.sendTo(lr, client, protocol.StoreSave{RoomID: client.roomID, Elements: lr.state.Snapshot()})
	roster := protocol.RoomParticipants{RoomID: client.roomID, Participants: lr.state.Participants()}
	h.sendTo(lr, client, roster)

	join := protocol.RoomJoin{RoomID: client.roomID, UserID: client.userID, Profile: client.profile}
	h.fanOut(lr, client, join)
	h.fanOut(lr, client, roster)

	h.logger.Info(ctx, "client joined room",
		slog.F("room_id", client.roomID),
		slog.F("user_id", client.userID),
		slog.F("participants", lr.state.ParticipantCount()),
	)
}

func (h *Hub) openRoom(ctx context.Context, roomID string) *liveRoom {
	loadCtx, cancel := context.WithTimeout(ctx, snapshotLoadTimeout)
	defer cancel()

	seed, err := h.store.LoadSnapshot(loadCtx, roomID)
	if err != nil {
		h.logger.Warn(ctx, "snapshot load failed, starting room empty",
			slog.F("room_id", roomID), slog.Error(err))
		seed = nil
	}
	return &liveRoom{
		state:   room.NewRoom(roomID, seed),
		bridge:  persist.NewBridge(h.store, roomID, h.logger, persist.WithClock(h.clock)),
		clients: make(map[*Client]bool),
		tasks:   make(map[string]protocol.Task),
	}
}

// drop removes a departing connection. The roster entry goes only when
// the user's last connection goes, so a reconnect overlap (replacement
// socket admitted before the stale one unregisters) or a second tab
// never makes the user vanish. The room itself is torn down, with a
// final flush, when no connections remain.
func (h *Hub) drop(ctx context.Context, client *Client) {
	h.mu.Lock()
	lr, ok := h.rooms[client.roomID]
	if !ok || !lr.clients[client] {
		h.mu.Unlock()
		client.closeSend()
		h.limiters.Remove(client.userID)
		return
	}
	delete(lr.clients, client)
	client.closeSend()

	userGone := true
	for other := range lr.clients {
		if other.userID == client.userID {
			userGone = false
			break
		}
	}
	if userGone {
		h.limiters.Remove(client.userID)
		lr.state.Leave(client.userID)
	}

	empty := len(lr.clients) == 0
	if empty {
		delete(h.rooms, client.roomID)
	}
	h.mu.Unlock()

	if empty {
		if err := lr.bridge.Close(ctx); err != nil {
			h.logger.Error(ctx, "final room flush failed",
				slog.F("room_id", client.roomID), slog.Error(err))
		}
		h.logger.Info(ctx, "room closed", slog.F("room_id", client.roomID))
		return
	}

	if !userGone {
		return
	}

	h.fanOut(lr, client, protocol.RoomLeave{RoomID: client.roomID, UserID: client.userID})
	h.fanOut(lr, client, protocol.RoomParticipants{
		RoomID:       client.roomID,
		Participants: lr.state.Participants(),
	})
	h.logger.Info(ctx, "client left room",
		slog.F("room_id", client.roomID),
		slog.F("user_id", client.userID),
		slog.F("remaining", lr.state.ParticipantCount()),
	)
}

// dispatch applies one client event to room state and relays it.
// Element mutations are stamped by the room clock before fanout so
// every peer sees server-ordered timestamps; ephemeral streams pass
// through untouched.
func (h *Hub) dispatch(message *Message) {
	h.mu.RLock()
	lr, ok := h.rooms[message.RoomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	sender := message.Sender

	switch ev := message.Event.(type) {
	case protocol.ElementAdded:
		if !lr.state.StampAdded(&ev) {
			return
		}
		h.fanOut(lr, sender, ev)
		lr.bridge.Notify(lr.state.Snapshot())
	case protocol.ElementUpdated:
		if !lr.state.StampUpdated(&ev) {
			return
		}
		h.fanOut(lr, sender, ev)
		lr.bridge.Notify(lr.state.Snapshot())
	case protocol.ElementDeleted:
		if !lr.state.ApplyDeleted(&ev) {
			return
		}
		h.fanOut(lr, sender, ev)
		lr.bridge.Notify(lr.state.Snapshot())
	case protocol.HistoryUndo:
		h.adopt(lr, sender, ev.Elements, ev)
	case protocol.HistoryRedo:
		h.adopt(lr, sender, ev.Elements, ev)
	case protocol.StoreSave:
		h.adopt(lr, sender, ev.Elements, ev)
	case protocol.StoreClear:
		lr.state.Clear()
		h.fanOut(lr, sender, ev)
		lr.bridge.Notify(nil)
	case protocol.RoomJoin:
		// A join event after the websocket-level admit refreshes the
		// profile and restates the canonical snapshot to the sender.
		lr.state.Join(presence.Participant{ID: ev.UserID, Profile: ev.Profile})
		h.sendTo(lr, sender, protocol.StoreSave{RoomID: message.RoomID, Elements: lr.state.Snapshot()})
		h.sendTo(lr, sender, protocol.RoomParticipants{
			RoomID:       message.RoomID,
			Participants: lr.state.Participants(),
		})
		h.fanOut(lr, sender, ev)
	case protocol.RoomLeave:
		// The real departure bookkeeping happens when the socket
		// unregisters; the explicit event just reaches peers sooner.
		h.fanOut(lr, sender, ev)
	case protocol.DrawingStart, protocol.DrawingContinue, protocol.DrawingEnd, protocol.CursorUpdate:
		h.fanOut(lr, sender, message.Event)
	case protocol.TaskCreated:
		lr.tasks[ev.Task.ID] = ev.Task
		h.fanOut(lr, sender, ev)
	case protocol.TaskUpdated:
		if _, known := lr.tasks[ev.Task.ID]; !known {
			h.sendTo(lr, sender, protocol.TaskRejected{TaskID: ev.Task.ID, Reason: "unknown task"})
			return
		}
		lr.tasks[ev.Task.ID] = ev.Task
		h.fanOut(lr, sender, ev)
	case protocol.TaskDeleted:
		delete(lr.tasks, ev.TaskID)
		h.fanOut(lr, sender, ev)
	case protocol.TaskMoved:
		t, known := lr.tasks[ev.TaskID]
		if !known {
			h.sendTo(lr, sender, protocol.TaskRejected{TaskID: ev.TaskID, Reason: "unknown task"})
			return
		}
		t.Status = ev.ToStatus
		t.Position = ev.Position
		lr.tasks[ev.TaskID] = t
		h.fanOut(lr, sender, ev)
	default:
		h.logger.Warn(context.Background(), "dropping unroutable event",
			slog.F("room_id", message.RoomID),
			slog.F("kind", string(message.Event.Kind())),
		)
	}
}

// adopt installs a full element set broadcast by an undo, redo or
// explicit save, then relays it.
func (h *Hub) adopt(lr *liveRoom, sender *Client, elements []canvas.Element, ev protocol.Event) {
	lr.state.ReplaceElements(elements)
	h.fanOut(lr, sender, ev)
	lr.bridge.Notify(lr.state.Snapshot())
}

// fanOut delivers the event to every client in the room except the
// sender. A client whose send buffer is full is cut loose rather than
// allowed to stall the room.
func (h *Hub) fanOut(lr *liveRoom, sender *Client, ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		h.logger.Error(context.Background(), "encode failed", slog.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range lr.clients {
		if client == sender {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn(context.Background(), "client send buffer full, disconnecting",
				slog.F("user_id", client.userID))
			client.disconnect()
		}
	}
}

// sendTo delivers one event to a single client.
func (h *Hub) sendTo(lr *liveRoom, client *Client, ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		h.logger.Error(context.Background(), "encode failed", slog.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !lr.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		client.disconnect()
	}
}

// shutdown flushes every live room on server stop.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*liveRoom)
	h.mu.Unlock()
	h.limiters.Stop()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
	defer cancel()
	for id, lr := range rooms {
		for client := range lr.clients {
			client.closeSend()
		}
		if err := lr.bridge.Close(flushCtx); err != nil {
			h.logger.Error(flushCtx, "shutdown flush failed",
				slog.F("room_id", id), slog.Error(err))
		}
	}
}

// RoomStats is a point-in-time view of the live rooms, for the HTTP
// stats endpoint and the idle sweeper.
type RoomStats struct {
	LiveRooms    int
	Participants int
}

func (h *Hub) Stats() RoomStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := RoomStats{LiveRooms: len(h.rooms)}
	for _, lr := range h.rooms {
		stats.Participants += lr.state.ParticipantCount()
	}
	return stats
}

// RoomLive reports whether a room currently has participants. The idle
// sweeper checks this before deleting persisted rooms.
func (h *Hub) RoomLive(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID]
	return ok
}
