package session

import (
	"context"
	"net/url"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/corkboard-dev/corkboard/internal/protocol"
)

// Transport delivers room events between this session and its peers.
// Delivery is at-least-once and ordered per sender; events from
// different senders may interleave arbitrarily.
type Transport interface {
	// Join connects the transport to a room. Calling it again after a
	// drop reconnects for a full resync.
	Join(ctx context.Context, roomID string) error
	// Emit sends one event to all other members of the room.
	Emit(ev protocol.Event) error
	// Events is the ordered stream of inbound events. The stream goes
	// quiet after Close; consumers stop via their own shutdown signal.
	Events() <-chan protocol.Event
	Close() error
}

const (
	emitRetries   = 3
	emitBackoff   = 100 * time.Millisecond
	dialTimeout   = 10 * time.Second
	eventsBacklog = 256
)

// WebsocketTransport speaks the corkboard wire protocol over a single
// websocket connection. One ordered connection per sender is what the
// per-sender ordering guarantee rests on.
type WebsocketTransport struct {
	baseURL string
	user    User
	logger  slog.Logger
	clock   quartz.Clock

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	events chan protocol.Event
}

type TransportOption func(*WebsocketTransport)

// WithTransportClock substitutes the clock pacing emit retries.
func WithTransportClock(clock quartz.Clock) TransportOption {
	return func(t *WebsocketTransport) { t.clock = clock }
}

func NewWebsocketTransport(baseURL string, user User, logger slog.Logger, opts ...TransportOption) *WebsocketTransport {
	t := &WebsocketTransport{
		baseURL: baseURL,
		user:    user,
		logger:  logger,
		clock:   quartz.NewReal(),
		events:  make(chan protocol.Event, eventsBacklog),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebsocketTransport) Join(ctx context.Context, roomID string) error {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return xerrors.Errorf("parse transport url: %w", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	q.Set("user", t.user.ID)
	q.Set("name", t.user.Profile.Name)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return xerrors.Errorf("dial %s: %w", u.String(), err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return xerrors.New("transport closed")
	}
	if t.conn != nil {
		// Reconnect: the old connection's state is gone, the session
		// resyncs from the snapshot the server sends on join.
		t.conn.Close()
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			current := t.conn == conn
			closed := t.closed
			t.mu.Unlock()
			if current && !closed {
				t.logger.Warn(context.Background(), "connection dropped", slog.Error(err))
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			// Malformed events are dropped at the boundary.
			t.logger.Warn(context.Background(), "dropping malformed event", slog.Error(err))
			continue
		}

		select {
		case t.events <- ev:
		default:
			t.logger.Warn(context.Background(), "event backlog full, dropping event",
				slog.F("kind", ev.Kind()))
		}
	}
}

// Emit sends with a small capped backoff: transient write failures are
// retried here so the session never sees them; a dead connection
// surfaces as an error once retries run out.
func (t *WebsocketTransport) Emit(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	err = backoffRetry(t.clock, emitRetries, emitBackoff, func() (bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return false, xerrors.New("transport closed")
		}
		if t.conn == nil {
			return false, xerrors.New("transport not joined")
		}
		return true, t.conn.WriteMessage(websocket.TextMessage, data)
	})
	if err != nil {
		return xerrors.Errorf("emit %s: %w", ev.Kind(), err)
	}
	return nil
}

// backoffRetry runs fn up to attempts times, doubling the wait between
// tries. fn reports whether its failure is worth retrying; a permanent
// failure returns immediately.
func backoffRetry(clock quartz.Clock, attempts int, base time.Duration, fn func() (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := clock.NewTimer(base << (attempt - 1))
			<-timer.C
		}
		retry, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (t *WebsocketTransport) Events() <-chan protocol.Event {
	return t.events
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
