package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"

	"github.com/corkboard-dev/corkboard/internal/canvas"
)

// SQLiteStore is the durable side of the persistence bridge: one
// snapshot row per room, upserted in place.
type SQLiteStore struct {
	db *sql.DB
}

type RoomRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, xerrors.Errorf("open database: %w", err)
	}

	// WAL keeps readers from blocking the debounced writers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, xerrors.Errorf("enable WAL: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, xerrors.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS canvas_snapshots (
		room_id TEXT PRIMARY KEY,
		elements TEXT NOT NULL,
		element_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_updated_at ON rooms(updated_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Room operations

func (s *SQLiteStore) CreateRoom(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO rooms (id, name) VALUES (?, ?)",
		id, name,
	)
	return err
}

func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*RoomRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room RoomRecord
	err := row.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *SQLiteStore) ListRooms(ctx context.Context, limit, offset int) ([]RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		var room RoomRecord
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *SQLiteStore) DeleteRoom(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM canvas_snapshots WHERE room_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	return err
}

// ListIdleRoomIDs returns rooms untouched since the cutoff, oldest
// first. Used by the retention sweeper.
func (s *SQLiteStore) ListIdleRoomIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM rooms WHERE updated_at < ? ORDER BY updated_at ASC",
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Snapshot operations

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, roomID string, elements []canvas.Element) error {
	if err := s.CreateRoom(ctx, roomID, ""); err != nil {
		return err
	}

	data, err := json.Marshal(elements)
	if err != nil {
		return xerrors.Errorf("marshal elements: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO canvas_snapshots (room_id, elements, element_count, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			elements = excluded.elements,
			element_count = excluded.element_count,
			updated_at = CURRENT_TIMESTAMP
	`, roomID, string(data), len(elements))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		roomID,
	)
	return err
}

// LoadSnapshot returns the last saved element set, or nil when the
// room has never been saved.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, roomID string) ([]canvas.Element, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT elements FROM canvas_snapshots WHERE room_id = ?",
		roomID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var elements []canvas.Element
	if err := json.Unmarshal([]byte(data), &elements); err != nil {
		return nil, xerrors.Errorf("unmarshal snapshot for room %s: %w", roomID, err)
	}
	return elements, nil
}

// Stats

func (s *SQLiteStore) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	var roomCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var snapshotCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM canvas_snapshots").Scan(&snapshotCount); err != nil {
		return nil, err
	}
	stats["snapshot_count"] = snapshotCount

	var elementCount int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(element_count), 0) FROM canvas_snapshots").Scan(&elementCount)
	if err != nil {
		return nil, err
	}
	stats["element_count"] = elementCount

	return stats, nil
}
