package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corkboard-dev/corkboard/internal/canvas"
)

func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "corkboard-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	elements := []canvas.Element{
		{ID: "e1", Type: canvas.TypeRect, X: 10, Y: 20, CreatedBy: "alice", CreatedAt: 1, UpdatedAt: 3},
		{ID: "e2", Type: canvas.TypePath, Points: []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, CreatedBy: "bob", CreatedAt: 2, UpdatedAt: 2},
	}

	if err := store.SaveSnapshot(ctx, "room-1", elements); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "room-1")
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(loaded))
	}
	if loaded[0].ID != "e1" || loaded[1].ID != "e2" {
		t.Error("Element order not preserved")
	}
	if loaded[1].Points[1].X != 2 {
		t.Error("Path points not preserved")
	}
	if loaded[0].UpdatedAt != 3 {
		t.Errorf("Expected UpdatedAt 3, got %d", loaded[0].UpdatedAt)
	}
}

func TestSnapshotUpsert(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, "room-1", []canvas.Element{{ID: "a", Type: canvas.TypeRect}}); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveSnapshot(ctx, "room-1", []canvas.Element{{ID: "b", Type: canvas.TypeRect}}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "room-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "b" {
		t.Error("Second save should replace the first")
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	loaded, err := store.LoadSnapshot(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loaded != nil {
		t.Error("Missing snapshot should load as nil")
	}
}

func TestRoomRecords(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateRoom(ctx, "room-1", "Design Review"); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	room, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil || room.Name != "Design Review" {
		t.Fatal("Room record mismatch")
	}

	room, err = store.GetRoom(ctx, "missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Missing room should be nil")
	}

	rooms, err := store.ListRooms(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("Expected 1 room, got %d", len(rooms))
	}

	if err := store.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}
	room, _ = store.GetRoom(ctx, "room-1")
	if room != nil {
		t.Error("Deleted room should be gone")
	}
}

func TestDeleteRoomRemovesSnapshot(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, "room-1", []canvas.Element{{ID: "a", Type: canvas.TypeRect}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "room-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Error("Snapshot should be deleted with its room")
	}
}

func TestListIdleRoomIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.CreateRoom(ctx, "fresh", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Everything is newer than a cutoff in the past.
	ids, err := store.ListIdleRoomIDs(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected no idle rooms, got %v", ids)
	}

	// Everything is older than a cutoff in the future.
	ids, err = store.ListIdleRoomIDs(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("Expected [fresh], got %v", ids)
	}
}

func TestStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, "r1", []canvas.Element{{ID: "a", Type: canvas.TypeRect}, {ID: "b", Type: canvas.TypeRect}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.SaveSnapshot(ctx, "r2", nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["room_count"] != 2 {
		t.Errorf("Expected 2 rooms, got %d", stats["room_count"])
	}
	if stats["element_count"] != 2 {
		t.Errorf("Expected 2 elements, got %d", stats["element_count"])
	}
}
