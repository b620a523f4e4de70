package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/corkboard-dev/corkboard/internal/canvas"
	"github.com/corkboard-dev/corkboard/internal/persist"
	"github.com/corkboard-dev/corkboard/internal/ws"
)

func setupTestAPI(t *testing.T) (*API, *persist.SQLiteStore, chi.Router) {
	t.Helper()

	store, err := persist.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slogtest.Make(t, nil)
	hub := ws.NewHub(store, logger)

	a := New(hub, store, logger)
	return a, store, a.Routes()
}

func doRequest(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, _, router := setupTestAPI(t)

	w := doRequest(t, router, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "ok", resp["status"])
}

func TestStats(t *testing.T) {
	_, store, router := setupTestAPI(t)

	require.NoError(t, store.CreateRoom(context.Background(), "room-1", "Planning"))

	w := doRequest(t, router, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.EqualValues(t, 0, resp["live_rooms"])
	require.EqualValues(t, 1, resp["saved_rooms"])
}

func TestCreateAndGetRoom(t *testing.T) {
	_, _, router := setupTestAPI(t)

	w := doRequest(t, router, "POST", "/api/rooms", CreateRoomRequest{ID: "room-1", Name: "Planning"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created RoomResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.Equal(t, "room-1", created.ID)
	require.Equal(t, "Planning", created.Name)
	require.False(t, created.Live)

	w = doRequest(t, router, "GET", "/api/rooms/room-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	_, _, router := setupTestAPI(t)

	w := doRequest(t, router, "POST", "/api/rooms", CreateRoomRequest{Name: "nameless"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/api/rooms", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoomNotFound(t *testing.T) {
	_, _, router := setupTestAPI(t)

	w := doRequest(t, router, "GET", "/api/rooms/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRooms(t *testing.T) {
	_, store, router := setupTestAPI(t)

	ctx := context.Background()
	require.NoError(t, store.CreateRoom(ctx, "room-1", "One"))
	require.NoError(t, store.CreateRoom(ctx, "room-2", "Two"))

	w := doRequest(t, router, "GET", "/api/rooms?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rooms []RoomResponse `json:"rooms"`
		Limit int            `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Rooms, 2)
	require.Equal(t, 10, resp.Limit)
}

func TestDeleteRoom(t *testing.T) {
	_, store, router := setupTestAPI(t)

	require.NoError(t, store.CreateRoom(context.Background(), "room-1", "One"))

	w := doRequest(t, router, "DELETE", "/api/rooms/room-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, "DELETE", "/api/rooms/room-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	_, store, router := setupTestAPI(t)

	w := doRequest(t, router, "GET", "/api/rooms/room-1/snapshot", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, store.SaveSnapshot(context.Background(), "room-1", []canvas.Element{
		{ID: "e1", Type: canvas.TypeRect, UpdatedAt: 3},
	}))

	w = doRequest(t, router, "GET", "/api/rooms/room-1/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RoomID   string           `json:"room_id"`
		Elements []canvas.Element `json:"elements"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "room-1", resp.RoomID)
	require.Len(t, resp.Elements, 1)
	require.Equal(t, "e1", resp.Elements[0].ID)
}
