package session

import (
	"context"

	"cdr.dev/slog"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/presence"
	"github.com/corkboard-dev/corkboard/internal/protocol"
)

// handleRemote applies one inbound event. Runs on the event loop.
// Remote edits never enter local history; undo only ever rewinds this
// client's own actions.
func (s *Session) handleRemote(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.RoomJoin:
		s.roster.Add(presence.Participant{ID: ev.UserID, Profile: ev.Profile})

	case protocol.RoomLeave:
		s.roster.Remove(ev.UserID)
		// Presence consistency: nothing of theirs stays retrievable.
		s.cursors.Remove(ev.UserID)
		s.tracker.Discard(ev.UserID)

	case protocol.RoomParticipants:
		s.roster.Replace(ev.Participants)
		s.dropAbsentEphemera()

	case protocol.ElementAdded:
		if ev.UserID == s.user.ID {
			return
		}
		s.clock.Observe(ev.Element.UpdatedAt)
		s.store.ApplyAdded(ev.Element)

	case protocol.ElementUpdated:
		if ev.UserID == s.user.ID {
			return
		}
		s.clock.Observe(ev.UpdatedAt)
		s.store.Update(ev.ID, ev.Patch, ev.UpdatedAt)

	case protocol.ElementDeleted:
		if ev.UserID == s.user.ID {
			return
		}
		s.store.Remove(ev.ElementID)

	case protocol.DrawingStart:
		if !s.allowEphemeral(ev.UserID) {
			return
		}
		s.tracker.Start(ev.UserID, ev.Point, ev.Tool, ev.Settings)

	case protocol.DrawingContinue:
		if !s.allowEphemeral(ev.UserID) {
			return
		}
		s.tracker.Continue(ev.UserID, ev.Point)

	case protocol.DrawingEnd:
		s.tracker.End(ev.UserID)

	case protocol.CursorUpdate:
		if !s.allowEphemeral(ev.UserID) {
			return
		}
		s.cursors.Set(presence.Cursor{UserID: ev.UserID, X: ev.X, Y: ev.Y, Profile: ev.Profile})

	case protocol.HistoryUndo:
		s.adoptAuthoritative(ev.Elements)

	case protocol.HistoryRedo:
		s.adoptAuthoritative(ev.Elements)

	case protocol.StoreClear:
		s.store.Clear()
		s.hist.Clear()

	case protocol.StoreSave:
		// Authoritative snapshot: join seeding, resync, or a flush
		// acknowledgement. Adopt, never merge.
		s.adoptAuthoritative(ev.Elements)

	case protocol.TaskCreated, protocol.TaskUpdated, protocol.TaskDeleted,
		protocol.TaskMoved, protocol.TaskRejected:
		// Board events are the kanban consumer's concern.

	default:
		s.logger.Warn(context.Background(), "ignoring unknown event",
			slog.F("kind", ev.Kind()))
	}
}

// adoptAuthoritative replaces the element set wholesale and
// fast-forwards the logical clock past everything in it.
func (s *Session) adoptAuthoritative(elements []canvas.Element) {
	for _, e := range elements {
		s.clock.Observe(e.UpdatedAt)
		s.clock.Observe(e.CreatedAt)
	}
	s.store.Replace(elements)
}

// allowEphemeral guards cursor and drawing events: a user who is not
// in the roster (or is us) gets dropped, which covers events arriving
// after a leave.
func (s *Session) allowEphemeral(userID string) bool {
	if userID == s.user.ID {
		return false
	}
	return s.roster.Has(userID)
}

// dropAbsentEphemera prunes cursors and active paths for anyone a
// roster replace removed.
func (s *Session) dropAbsentEphemera() {
	for _, userID := range s.cursors.Users() {
		if !s.roster.Has(userID) {
			s.cursors.Remove(userID)
		}
	}
	for _, userID := range s.tracker.Users() {
		if !s.roster.Has(userID) {
			s.tracker.Discard(userID)
		}
	}
}
