// Package maintenance runs the background retention sweep: persisted
// rooms that nobody has touched for the retention window are deleted,
// snapshot and all, unless they are live right now.
package maintenance

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
)

type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// Retention is how long an untouched room survives.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

// RoomStore is the slice of the persistence layer the sweeper needs.
type RoomStore interface {
	ListIdleRoomIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteRoom(ctx context.Context, id string) error
}

// Liveness answers whether a room currently has participants. Live
// rooms are never swept, whatever their persisted age.
type Liveness interface {
	RoomLive(roomID string) bool
}

type Sweeper struct {
	store  RoomStore
	live   Liveness
	config Config
	logger slog.Logger
	clock  quartz.Clock

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Sweeper)

func WithClock(clock quartz.Clock) Option {
	return func(s *Sweeper) { s.clock = clock }
}

func New(store RoomStore, live Liveness, config Config, logger slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:  store,
		live:   live,
		config: config,
		logger: logger,
		clock:  quartz.NewReal(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info(context.Background(), "retention sweeper started",
		slog.F("interval", s.config.Interval),
		slog.F("retention", s.config.Retention),
	)
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep deletes every idle room older than the retention window and
// reports how many went.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.config.Retention)
	ids, err := s.store.ListIdleRoomIDs(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, "idle room listing failed", slog.Error(err))
		return 0
	}

	swept := 0
	for _, id := range ids {
		if s.live.RoomLive(id) {
			continue
		}
		if err := s.store.DeleteRoom(ctx, id); err != nil {
			s.logger.Error(ctx, "room deletion failed",
				slog.F("room_id", id), slog.Error(err))
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info(ctx, "swept idle rooms", slog.F("count", swept))
	}
	return swept
}
