// Package api exposes the HTTP surface: health, stats, room CRUD and
// snapshot export, plus the websocket upgrade endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"cdr.dev/slog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corkboard-dev/corkboard/internal/persist"
	"github.com/corkboard-dev/corkboard/internal/ws"
)

type API struct {
	hub    *ws.Hub
	store  *persist.SQLiteStore
	logger slog.Logger
}

func New(hub *ws.Hub, store *persist.SQLiteStore, logger slog.Logger) *API {
	return &API{
		hub:    hub,
		store:  store,
		logger: logger,
	}
}

// Routes builds the router. The websocket endpoint lives alongside the
// REST surface so one listener serves both.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(a.hub, w, req)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", a.handleStats)
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.handleListRooms)
			r.Post("/", a.handleCreateRoom)
			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", a.handleGetRoom)
				r.Delete("/", a.handleDeleteRoom)
				r.Get("/snapshot", a.handleGetSnapshot)
			})
		})
	})

	return r
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn(ctx, "response encode failed", slog.Error(err))
	}
}

func (a *API) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	a.writeJSON(ctx, w, status, map[string]string{"error": message})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hubStats := a.hub.Stats()
	stats := map[string]interface{}{
		"live_rooms":   hubStats.LiveRooms,
		"participants": hubStats.Participants,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	dbStats, err := a.store.Stats(ctx)
	if err != nil {
		a.logger.Warn(ctx, "stats query failed", slog.Error(err))
	} else {
		stats["saved_rooms"] = dbStats["room_count"]
		stats["saved_snapshots"] = dbStats["snapshot_count"]
		stats["saved_elements"] = dbStats["element_count"]
	}

	a.writeJSON(ctx, w, http.StatusOK, stats)
}

// RoomResponse augments the persisted record with the live participant
// count.
type RoomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Live      bool      `json:"live"`
}

type CreateRoomRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (a *API) roomResponse(rec persist.RoomRecord) RoomResponse {
	return RoomResponse{
		ID:        rec.ID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Live:      a.hub.RoomLive(rec.ID),
	}
}

func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.store.ListRooms(ctx, limit, offset)
	if err != nil {
		a.logger.Error(ctx, "room listing failed", slog.Error(err))
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	response := make([]RoomResponse, len(rooms))
	for i, rec := range rooms {
		response[i] = a.roomResponse(rec)
	}

	a.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		a.writeError(ctx, w, http.StatusBadRequest, "room id is required")
		return
	}

	if err := a.store.CreateRoom(ctx, req.ID, req.Name); err != nil {
		a.logger.Error(ctx, "room creation failed", slog.Error(err))
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to create room")
		return
	}

	rec, err := a.store.GetRoom(ctx, req.ID)
	if err != nil || rec == nil {
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to load room")
		return
	}

	a.writeJSON(ctx, w, http.StatusCreated, a.roomResponse(*rec))
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomID")

	rec, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		a.logger.Error(ctx, "room lookup failed", slog.Error(err))
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if rec == nil {
		a.writeError(ctx, w, http.StatusNotFound, "room not found")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, a.roomResponse(*rec))
}

func (a *API) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomID")

	// A room with people in it cannot be deleted out from under them.
	if a.hub.RoomLive(roomID) {
		a.writeError(ctx, w, http.StatusConflict, "room is live")
		return
	}

	rec, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if rec == nil {
		a.writeError(ctx, w, http.StatusNotFound, "room not found")
		return
	}

	if err := a.store.DeleteRoom(ctx, roomID); err != nil {
		a.logger.Error(ctx, "room deletion failed", slog.Error(err))
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to delete room")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomID")

	elements, err := a.store.LoadSnapshot(ctx, roomID)
	if err != nil {
		a.logger.Error(ctx, "snapshot load failed", slog.Error(err))
		a.writeError(ctx, w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if elements == nil {
		a.writeError(ctx, w, http.StatusNotFound, "no snapshot for room")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"elements": elements,
	})
}
