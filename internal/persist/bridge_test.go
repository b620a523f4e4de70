package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/corkboard-dev/corkboard/internal/canvas"
)

type fakeStore struct {
	mu    sync.Mutex
	saves [][]canvas.Element
	err   error
}

func (f *fakeStore) LoadSnapshot(ctx context.Context, roomID string) ([]canvas.Element, error) {
	return nil, nil
}

func (f *fakeStore) SaveSnapshot(ctx context.Context, roomID string, elements []canvas.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves = append(f.saves, elements)
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) lastSave() []canvas.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func snap(n int) []canvas.Element {
	out := make([]canvas.Element, n)
	for i := range out {
		out[i] = canvas.Element{ID: canvas.NewID(), Type: canvas.TypeRect}
	}
	return out
}

func TestBridgeDebounce(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	store := &fakeStore{}
	b := NewBridge(store, "r1", slogtest.Make(t, nil), WithClock(mock))

	b.Notify(snap(1))
	b.Notify(snap(2))
	b.Notify(snap(3))

	// Still inside the quiet period: nothing saved.
	mock.Advance(DefaultSaveDelay / 2).MustWait(ctx)
	require.Equal(t, 0, store.saveCount())

	mock.Advance(DefaultSaveDelay / 2).MustWait(ctx)
	require.Equal(t, 1, store.saveCount())
	require.Len(t, store.lastSave(), 3)
}

func TestBridgeNotifyResetsQuietPeriod(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	store := &fakeStore{}
	b := NewBridge(store, "r1", slogtest.Make(t, nil), WithClock(mock))

	b.Notify(snap(1))
	mock.Advance(DefaultSaveDelay - time.Millisecond).MustWait(ctx)

	// A mutation just before the deadline pushes the save out again.
	b.Notify(snap(2))
	mock.Advance(time.Millisecond).MustWait(ctx)
	require.Equal(t, 0, store.saveCount())

	mock.Advance(DefaultSaveDelay - time.Millisecond).MustWait(ctx)
	require.Equal(t, 1, store.saveCount())
	require.Len(t, store.lastSave(), 2)
}

func TestBridgeFlushImmediate(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	store := &fakeStore{}
	b := NewBridge(store, "r1", slogtest.Make(t, nil), WithClock(mock))

	b.Notify(snap(2))
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 1, store.saveCount())

	// Nothing dirty, nothing saved.
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 1, store.saveCount())
}

func TestBridgeSaveFailureSurfacedAndRetried(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	store := &fakeStore{}
	store.setErr(xerrors.New("disk full"))
	b := NewBridge(store, "r1", slogtest.Make(t, nil), WithClock(mock))

	b.Notify(snap(1))

	err := b.Flush(ctx)
	require.Error(t, err)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	require.Equal(t, "r1", saveErr.RoomID)

	// The failed state is still pending; the next flush lands it.
	store.setErr(nil)
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 1, store.saveCount())
}

func TestBridgeCloseFlushesOnce(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	store := &fakeStore{}
	b := NewBridge(store, "r1", slogtest.Make(t, nil), WithClock(mock))

	b.Notify(snap(4))
	require.NoError(t, b.Close(ctx))
	require.Equal(t, 1, store.saveCount())
	require.Len(t, store.lastSave(), 4)

	// Closed bridge drops further notifications.
	b.Notify(snap(9))
	require.NoError(t, b.Close(ctx))
	require.Equal(t, 1, store.saveCount())
}
