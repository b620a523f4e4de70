package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

type fakeRoomStore struct {
	mu      sync.Mutex
	idle    []string
	deleted []string
	listErr error
	delErr  map[string]error
}

func (f *fakeRoomStore) ListIdleRoomIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.idle...), nil
}

func (f *fakeRoomStore) DeleteRoom(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.delErr[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeLiveness map[string]bool

func (f fakeLiveness) RoomLive(roomID string) bool { return f[roomID] }

func TestSweepDeletesIdleRooms(t *testing.T) {
	store := &fakeRoomStore{idle: []string{"a", "b"}}
	s := New(store, fakeLiveness{}, DefaultConfig(), slogtest.Make(t, nil))

	require.Equal(t, 2, s.Sweep(context.Background()))
	require.Equal(t, []string{"a", "b"}, store.deleted)
}

func TestSweepSkipsLiveRooms(t *testing.T) {
	store := &fakeRoomStore{idle: []string{"a", "b"}}
	s := New(store, fakeLiveness{"a": true}, DefaultConfig(), slogtest.Make(t, nil))

	require.Equal(t, 1, s.Sweep(context.Background()))
	require.Equal(t, []string{"b"}, store.deleted)
}

func TestSweepContinuesPastDeleteFailure(t *testing.T) {
	store := &fakeRoomStore{
		idle:   []string{"a", "b"},
		delErr: map[string]error{"a": xerrors.New("locked")},
	}
	s := New(store, fakeLiveness{}, DefaultConfig(), slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}))

	require.Equal(t, 1, s.Sweep(context.Background()))
	require.Equal(t, []string{"b"}, store.deleted)
}

func TestSweepListFailure(t *testing.T) {
	store := &fakeRoomStore{listErr: xerrors.New("db down")}
	s := New(store, fakeLiveness{}, DefaultConfig(), slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}))

	require.Equal(t, 0, s.Sweep(context.Background()))
}

func TestSweeperRunsOnTicker(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	trap := mock.Trap().NewTicker()
	defer trap.Close()

	store := &fakeRoomStore{idle: []string{"a"}}
	cfg := Config{Interval: time.Minute, Retention: time.Hour}
	s := New(store, fakeLiveness{}, cfg, slogtest.Make(t, nil), WithClock(mock))

	s.Start()
	defer s.Stop()

	// Wait until the run loop has its ticker before advancing time.
	trap.MustWait(ctx).Release()
	mock.Advance(time.Minute).MustWait(ctx)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.deleted) == 1
	}, time.Second, 10*time.Millisecond)
}
