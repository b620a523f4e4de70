// Package protocol defines the room-scoped event vocabulary: a closed
// set of event kinds, their typed payloads, and the JSON envelope they
// travel in. Decoding validates required fields so a malformed event
// is dropped at the boundary and can never corrupt room state.
package protocol

import (
	"fmt"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/presence"
)

type Type string

const (
	TypeRoomJoin         Type = "room:join"
	TypeRoomLeave        Type = "room:leave"
	TypeRoomParticipants Type = "room:participants"

	TypeElementAdded   Type = "element:added"
	TypeElementUpdated Type = "element:updated"
	TypeElementDeleted Type = "element:deleted"

	TypeDrawingStart    Type = "drawing:start"
	TypeDrawingContinue Type = "drawing:continue"
	TypeDrawingEnd      Type = "drawing:end"

	TypeCursorUpdate Type = "cursor:update"

	TypeHistoryUndo Type = "history:undo"
	TypeHistoryRedo Type = "history:redo"

	TypeStoreClear Type = "store:clear"
	TypeStoreSave  Type = "store:save"

	TypeTaskCreated  Type = "task:created"
	TypeTaskUpdated  Type = "task:updated"
	TypeTaskDeleted  Type = "task:deleted"
	TypeTaskMoved    Type = "task:moved"
	TypeTaskRejected Type = "task:rejected"
)

// Event is the closed union of everything that travels through a room.
type Event interface {
	Kind() Type
}

// MalformedEventError reports an event that failed decoding or
// validation. The event is dropped and logged; it is never applied.
type MalformedEventError struct {
	Kind   Type
	Reason string
}

func (e *MalformedEventError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("malformed event: %s", e.Reason)
	}
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Reason)
}

func malformed(kind Type, reason string) error {
	return &MalformedEventError{Kind: kind, Reason: reason}
}

type RoomJoin struct {
	RoomID  string           `json:"roomId"`
	UserID  string           `json:"userId"`
	Profile presence.Profile `json:"profile"`
}

func (RoomJoin) Kind() Type { return TypeRoomJoin }

type RoomLeave struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (RoomLeave) Kind() Type { return TypeRoomLeave }

// RoomParticipants is a full roster replace, sent on join and resync.
type RoomParticipants struct {
	RoomID       string                 `json:"roomId"`
	Participants []presence.Participant `json:"participants"`
}

func (RoomParticipants) Kind() Type { return TypeRoomParticipants }

type ElementAdded struct {
	Element canvas.Element `json:"element"`
	UserID  string         `json:"userId"`
}

func (ElementAdded) Kind() Type { return TypeElementAdded }

type ElementUpdated struct {
	ID     string       `json:"id"`
	Patch  canvas.Patch `json:"patch"`
	UserID string       `json:"userId"`
	// UpdatedAt is stamped by the room on ingress; receivers use it
	// for the last-writer-wins comparison.
	UpdatedAt int64 `json:"updatedAt"`
}

func (ElementUpdated) Kind() Type { return TypeElementUpdated }

type ElementDeleted struct {
	ElementID string `json:"elementId"`
	UserID    string `json:"userId"`
}

func (ElementDeleted) Kind() Type { return TypeElementDeleted }

type DrawingStart struct {
	UserID   string       `json:"userId"`
	Point    canvas.Point `json:"point"`
	Tool     string       `json:"tool"`
	Settings canvas.Style `json:"settings"`
}

func (DrawingStart) Kind() Type { return TypeDrawingStart }

type DrawingContinue struct {
	UserID string       `json:"userId"`
	Point  canvas.Point `json:"point"`
}

func (DrawingContinue) Kind() Type { return TypeDrawingContinue }

type DrawingEnd struct {
	UserID string `json:"userId"`
}

func (DrawingEnd) Kind() Type { return TypeDrawingEnd }

type CursorUpdate struct {
	UserID  string           `json:"userId"`
	X       float64          `json:"x"`
	Y       float64          `json:"y"`
	Profile presence.Profile `json:"profile"`
}

func (CursorUpdate) Kind() Type { return TypeCursorUpdate }

// HistoryUndo carries the full element set that results from the
// author's undo. Collaborators adopt it wholesale, never merge it.
type HistoryUndo struct {
	UserID   string           `json:"userId"`
	Elements []canvas.Element `json:"elements"`
}

func (HistoryUndo) Kind() Type { return TypeHistoryUndo }

type HistoryRedo struct {
	UserID   string           `json:"userId"`
	Elements []canvas.Element `json:"elements"`
}

func (HistoryRedo) Kind() Type { return TypeHistoryRedo }

type StoreClear struct {
	UserID string `json:"userId"`
}

func (StoreClear) Kind() Type { return TypeStoreClear }

// StoreSave carries a full element set: emitted by the server to seed
// joiners and acknowledge flushes, treated by clients as an
// authoritative replace.
type StoreSave struct {
	RoomID   string           `json:"roomId"`
	Elements []canvas.Element `json:"elements"`
}

func (StoreSave) Kind() Type { return TypeStoreSave }

// Task is the kanban wire shape. The board sync reuses the element
// protocol's pattern at a coarser grain: whole-task last-writer-wins.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

type TaskCreated struct {
	Task   Task   `json:"task"`
	UserID string `json:"userId"`
}

func (TaskCreated) Kind() Type { return TypeTaskCreated }

type TaskUpdated struct {
	Task   Task   `json:"task"`
	UserID string `json:"userId"`
}

func (TaskUpdated) Kind() Type { return TypeTaskUpdated }

type TaskDeleted struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
}

func (TaskDeleted) Kind() Type { return TypeTaskDeleted }

type TaskMoved struct {
	TaskID     string `json:"taskId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	Position   int    `json:"position"`
	UserID     string `json:"userId"`
}

func (TaskMoved) Kind() Type { return TypeTaskMoved }

// TaskRejected is the server refusing a task event; the originator
// replays the inverse of its optimistic move.
type TaskRejected struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

func (TaskRejected) Kind() Type { return TypeTaskRejected }
