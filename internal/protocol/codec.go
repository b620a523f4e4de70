package protocol

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// envelope is the wire frame: the kind tag plus the payload.
type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode frames an event for the wire.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, xerrors.Errorf("marshal %s payload: %w", ev.Kind(), err)
	}
	out, err := json.Marshal(envelope{Type: ev.Kind(), Data: data})
	if err != nil {
		return nil, xerrors.Errorf("marshal %s envelope: %w", ev.Kind(), err)
	}
	return out, nil
}

// Decode parses and validates a wire frame. Unknown kinds and payloads
// missing required fields come back as *MalformedEventError.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MalformedEventError{Reason: "invalid envelope: " + err.Error()}
	}
	if env.Type == "" {
		return nil, &MalformedEventError{Reason: "missing type"}
	}

	switch env.Type {
	case TypeRoomJoin:
		var ev RoomJoin
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.RoomID == "" || ev.UserID == "" {
			return nil, malformed(env.Type, "roomId and userId are required")
		}
		return ev, nil

	case TypeRoomLeave:
		var ev RoomLeave
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.RoomID == "" || ev.UserID == "" {
			return nil, malformed(env.Type, "roomId and userId are required")
		}
		return ev, nil

	case TypeRoomParticipants:
		var ev RoomParticipants
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.RoomID == "" {
			return nil, malformed(env.Type, "roomId is required")
		}
		return ev, nil

	case TypeElementAdded:
		var ev ElementAdded
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.Element.ID == "" {
			return nil, malformed(env.Type, "element.id is required")
		}
		if ev.Element.Type == "" {
			return nil, malformed(env.Type, "element.type is required")
		}
		return ev, nil

	case TypeElementUpdated:
		var ev ElementUpdated
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, malformed(env.Type, "id is required")
		}
		return ev, nil

	case TypeElementDeleted:
		var ev ElementDeleted
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.ElementID == "" {
			return nil, malformed(env.Type, "elementId is required")
		}
		return ev, nil

	case TypeDrawingStart:
		var ev DrawingStart
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, malformed(env.Type, "userId is required")
		}
		return ev, nil

	case TypeDrawingContinue:
		var ev DrawingContinue
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, malformed(env.Type, "userId is required")
		}
		return ev, nil

	case TypeDrawingEnd:
		var ev DrawingEnd
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, malformed(env.Type, "userId is required")
		}
		return ev, nil

	case TypeCursorUpdate:
		var ev CursorUpdate
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, malformed(env.Type, "userId is required")
		}
		return ev, nil

	case TypeHistoryUndo:
		var ev HistoryUndo
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case TypeHistoryRedo:
		var ev HistoryRedo
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case TypeStoreClear:
		var ev StoreClear
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case TypeStoreSave:
		var ev StoreSave
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case TypeTaskCreated:
		var ev TaskCreated
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.Task.ID == "" {
			return nil, malformed(env.Type, "task.id is required")
		}
		return ev, nil

	case TypeTaskUpdated:
		var ev TaskUpdated
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.Task.ID == "" {
			return nil, malformed(env.Type, "task.id is required")
		}
		return ev, nil

	case TypeTaskDeleted:
		var ev TaskDeleted
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.TaskID == "" {
			return nil, malformed(env.Type, "taskId is required")
		}
		return ev, nil

	case TypeTaskMoved:
		var ev TaskMoved
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.TaskID == "" {
			return nil, malformed(env.Type, "taskId is required")
		}
		return ev, nil

	case TypeTaskRejected:
		var ev TaskRejected
		if err := unmarshal(env, &ev); err != nil {
			return nil, err
		}
		if ev.TaskID == "" {
			return nil, malformed(env.Type, "taskId is required")
		}
		return ev, nil

	default:
		return nil, malformed(env.Type, "unknown event kind")
	}
}

func unmarshal(env envelope, into any) error {
	if len(env.Data) == 0 {
		return malformed(env.Type, "missing payload")
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		return malformed(env.Type, "invalid payload: "+err.Error())
	}
	return nil
}
