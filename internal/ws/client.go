package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/corkboard-dev/corkboard/internal/presence"
	"github.com/corkboard-dev/corkboard/internal/protocol"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	sendBufferSize    = 512
	messagesPerSecond = 100
	messageBurst      = 200

	// A client this far over the limit is not throttled, it is broken.
	rateLimitCutoff = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection bound to a room and a user.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	roomID  string
	userID  string
	profile presence.Profile
	logger  slog.Logger

	closeOnce sync.Once
	sendOnce  sync.Once
}

// ServeWs upgrades the request and attaches the connection to its
// room. Identity rides in on query parameters; a missing user id gets
// a generated one so anonymous visitors still work.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "default"
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = uuid.NewString()
	}
	profile := presence.Profile{
		Name:   r.URL.Query().Get("name"),
		Color:  r.URL.Query().Get("color"),
		Avatar: r.URL.Query().Get("avatar"),
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn(r.Context(), "websocket upgrade failed", slog.Error(err))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		roomID:  roomID,
		userID:  userID,
		profile: profile,
		logger: hub.logger.With(
			slog.F("room_id", roomID),
			slog.F("user_id", userID),
		),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) disconnect() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// closeSend closes the outbound buffer exactly once, however many
// unregister paths race to it.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// readPump decodes inbound events and hands them to the hub. Malformed
// payloads and rate-limit overruns are dropped without breaking the
// connection; a persistently abusive client is cut off.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.disconnect()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limiter := c.hub.limiters.Get(c.userID)
	overruns := 0
	ctx := context.Background()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn(ctx, "websocket read failed", slog.Error(err))
			}
			return
		}

		if !limiter.Allow() {
			overruns++
			if overruns%100 == 1 {
				c.logger.Warn(ctx, "rate limit exceeded", slog.F("overruns", overruns))
			}
			if overruns > rateLimitCutoff {
				c.logger.Warn(ctx, "disconnecting client for sustained rate limit abuse")
				return
			}
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			var malformed *protocol.MalformedEventError
			if xerrors.As(err, &malformed) {
				c.logger.Warn(ctx, "dropping malformed event",
					slog.F("kind", string(malformed.Kind)),
					slog.F("reason", malformed.Reason),
				)
			} else {
				c.logger.Warn(ctx, "dropping undecodable payload", slog.Error(err))
			}
			continue
		}

		c.hub.broadcast <- &Message{
			RoomID: c.roomID,
			Event:  ev,
			Sender: c,
		}
	}
}

// writePump drains the send buffer onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.disconnect()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
