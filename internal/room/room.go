// Package room holds the server-side authoritative state of one
// collaboration session: the roster and the element set, plus the
// logical clock that stamps every element mutation on ingress.
package room

import (
	"sync"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/presence"
	"github.com/corkboard-dev/corkboard/internal/protocol"
)

// Room is created on first join and destroyed when the last
// participant leaves. Client read pumps touch it concurrently, so all
// access goes through the mutex.
type Room struct {
	ID string

	mu     sync.RWMutex
	clock  canvas.Clock
	roster *presence.Roster
	store  *canvas.Store
}

// NewRoom seeds the element set from the persisted snapshot (nil for a
// brand-new room) and fast-forwards the clock past every timestamp in
// it, so post-restart stamps still order after the restored state.
func NewRoom(id string, seed []canvas.Element) *Room {
	r := &Room{
		ID:     id,
		roster: presence.NewRoster(),
		store:  canvas.NewStore(),
	}
	if len(seed) > 0 {
		r.store.Replace(seed)
		r.observeAll(seed)
	}
	return r
}

func (r *Room) observeAll(elements []canvas.Element) {
	for _, e := range elements {
		r.clock.Observe(e.UpdatedAt)
		r.clock.Observe(e.CreatedAt)
	}
}

func (r *Room) Join(p presence.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster.Add(p)
}

// Leave removes a participant and reports how many remain. The caller
// tears the room down (after a final flush) when zero remain.
func (r *Room) Leave(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster.Remove(userID)
	return r.roster.Len()
}

func (r *Room) HasParticipant(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Has(userID)
}

func (r *Room) Participants() []presence.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.List()
}

func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Len()
}

// StampAdded stamps authorship and both timestamps on the incoming
// element, then inserts it. The mutated event is what gets fanned out,
// so every peer sees the server-stamped element. Returns false on a
// duplicate id (redelivery), in which case nothing changed.
func (r *Room) StampAdded(ev *protocol.ElementAdded) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store.Has(ev.Element.ID) {
		return false
	}
	ts := r.clock.Tick()
	ev.Element.CreatedBy = ev.UserID
	ev.Element.CreatedAt = ts
	ev.Element.UpdatedAt = ts
	return r.store.ApplyAdded(ev.Element)
}

// StampUpdated replaces any client-supplied timestamp with a fresh
// tick, then merges. Client wall clocks never decide conflicts; the
// room clock does.
func (r *Room) StampUpdated(ev *protocol.ElementUpdated) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.UpdatedAt = r.clock.Tick()
	return r.store.Update(ev.ID, ev.Patch, ev.UpdatedAt)
}

// ApplyDeleted removes the element; deleting an absent id is a no-op.
func (r *Room) ApplyDeleted(ev *protocol.ElementDeleted) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Remove(ev.ElementID)
}

// ReplaceElements installs an authoritative element set, as broadcast
// by an undo or redo.
func (r *Room) ReplaceElements(elements []canvas.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Replace(elements)
	r.observeAll(elements)
}

func (r *Room) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Clear()
}

// Snapshot returns a deep copy of the element set in z-order.
func (r *Room) Snapshot() []canvas.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Snapshot()
}

func (r *Room) ElementCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Len()
}
