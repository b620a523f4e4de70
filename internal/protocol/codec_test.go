package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/presence"
)

func roundTrip(t *testing.T, ev Event) Event {
	t.Helper()
	data, err := Encode(ev)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, ev.Kind(), decoded.Kind())
	return decoded
}

func TestEncodeDecodeElementAdded(t *testing.T) {
	ev := ElementAdded{
		Element: canvas.Element{
			ID:        "e1",
			Type:      canvas.TypeRect,
			X:         10,
			Y:         20,
			Style:     canvas.Style{StrokeColor: "#1a2b3c", StrokeWidth: 2},
			CreatedBy: "alice",
			CreatedAt: 4,
			UpdatedAt: 4,
		},
		UserID: "alice",
	}

	decoded := roundTrip(t, ev).(ElementAdded)
	require.Equal(t, ev, decoded)
}

func TestEncodeDecodeElementUpdated(t *testing.T) {
	x := 50.0
	ev := ElementUpdated{
		ID:        "e1",
		Patch:     canvas.Patch{X: &x},
		UserID:    "bob",
		UpdatedAt: 9,
	}

	decoded := roundTrip(t, ev).(ElementUpdated)
	require.Equal(t, "e1", decoded.ID)
	require.NotNil(t, decoded.Patch.X)
	require.EqualValues(t, 50, *decoded.Patch.X)
	require.Nil(t, decoded.Patch.Y)
	require.EqualValues(t, 9, decoded.UpdatedAt)
}

func TestEncodeDecodeDrawingAndCursor(t *testing.T) {
	start := roundTrip(t, DrawingStart{
		UserID:   "alice",
		Point:    canvas.Point{X: 1, Y: 2},
		Tool:     "pen",
		Settings: canvas.Style{StrokeWidth: 3},
	}).(DrawingStart)
	require.Equal(t, "pen", start.Tool)

	cur := roundTrip(t, CursorUpdate{
		UserID:  "alice",
		X:       100,
		Y:       200,
		Profile: presence.Profile{Name: "Alice"},
	}).(CursorUpdate)
	require.EqualValues(t, 100, cur.X)
}

func TestEncodeDecodeRoomEvents(t *testing.T) {
	join := roundTrip(t, RoomJoin{
		RoomID:  "r1",
		UserID:  "alice",
		Profile: presence.Profile{Name: "Alice", Color: "#f00"},
	}).(RoomJoin)
	require.Equal(t, "r1", join.RoomID)

	parts := roundTrip(t, RoomParticipants{
		RoomID:       "r1",
		Participants: []presence.Participant{{ID: "alice"}, {ID: "bob"}},
	}).(RoomParticipants)
	require.Len(t, parts.Participants, 2)
}

func TestEncodeDecodeTaskMoved(t *testing.T) {
	ev := roundTrip(t, TaskMoved{
		TaskID:     "t1",
		FromStatus: "todo",
		ToStatus:   "doing",
		Position:   2,
		UserID:     "alice",
	}).(TaskMoved)
	require.Equal(t, "doing", ev.ToStatus)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"element:exploded","data":{}}`))
	require.Error(t, err)
	var malformed *MalformedEventError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, Type("element:exploded"), malformed.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"garbage", `not json`},
		{"missing type", `{"data":{}}`},
		{"missing payload", `{"type":"element:added"}`},
		{"added without id", `{"type":"element:added","data":{"element":{"type":"rect"},"userId":"a"}}`},
		{"added without type", `{"type":"element:added","data":{"element":{"id":"e1"},"userId":"a"}}`},
		{"updated without id", `{"type":"element:updated","data":{"patch":{},"userId":"a"}}`},
		{"deleted without id", `{"type":"element:deleted","data":{"userId":"a"}}`},
		{"join without room", `{"type":"room:join","data":{"userId":"a"}}`},
		{"cursor without user", `{"type":"cursor:update","data":{"x":1,"y":2}}`},
		{"payload wrong shape", `{"type":"cursor:update","data":{"x":"left"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			require.Error(t, err)
			var malformed *MalformedEventError
			require.ErrorAs(t, err, &malformed)
		})
	}
}
