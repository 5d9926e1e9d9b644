// Package ws implements the realtime gateway: a websocket hub with rooms
// keyed by round and user ids. Clients join rooms with typed subscribe
// messages; everything published to the matching signal-bus channels is fanned
// out to room members.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictd/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64

	// lookupTimeout bounds the store lookups done on subscribe.
	lookupTimeout = 5 * time.Second
)

// busChannels are the signal-bus patterns the hub bridges into rooms.
var busChannels = []string{"round:*", "user:*"}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// RoundLookup fetches the round snapshot emitted on subscribe.
type RoundLookup interface {
	Get(ctx context.Context, id string) (domain.Round, error)
}

// UserLookup verifies user ids before a user-room join.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// clientMsg is the tagged message a client sends to join a room.
type clientMsg struct {
	Type string `json:"type"` // "subscribe:round" or "subscribe:user"
	ID   string `json:"id"`
}

// client represents a single WebSocket connection and the rooms it joined.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
	mu    sync.RWMutex
}

// broadcastMsg carries a bus payload along with its source channel so the hub
// can route it only to clients in the matching room.
type broadcastMsg struct {
	room string
	data []byte
}

// Hub manages connected WebSocket clients, their room membership, and the
// bridge from the signal bus into rooms. Room membership is torn down
// automatically when a client disconnects.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client

	bus    domain.SignalBus
	rounds RoundLookup
	users  UserLookup
	logger *slog.Logger

	// ctx is the hub's lifetime context, set by Run and used to bound the
	// subscribe-time store lookups.
	ctx context.Context

	// done is closed when Run exits. Register and unregister sends select on
	// it so connection goroutines cannot block once the loop has stopped.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub that resolves subscriptions against the given lookups
// and bridges the signal bus into rooms.
func NewHub(bus domain.SignalBus, rounds RoundLookup, users UserLookup, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		rounds:     rounds,
		users:      users,
		logger:     logger,
		ctx:        context.Background(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.ctx = ctx
	defer close(h.done)

	for _, ch := range busChannels {
		go h.bridgeChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.inRoom(msg.room) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client",
							slog.String("room", msg.room),
						)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// bridgeChannel subscribes to a signal-bus pattern and forwards received
// payloads to the room named by the concrete channel. Payloads on the bus are
// published per-entity ("round:<id>"), so the pattern subscription has to be
// re-keyed per message; the bus interface only hands back payloads, so the
// room is recovered from the envelope.
func (h *Hub) bridgeChannel(ctx context.Context, pattern string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to bus",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: bridging bus pattern", slog.String("pattern", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed",
					slog.String("pattern", pattern),
				)
				return
			}

			room, ok := roomFor(pattern, data)
			if !ok {
				continue
			}
			h.broadcast <- broadcastMsg{room: room, data: data}
		}
	}
}

// roomFor derives the destination room from a bus payload. Round updates
// carry the round id inside the envelope payload; notifications carry the
// user id.
func roomFor(pattern string, data []byte) (string, bool) {
	var envelope domain.Event
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", false
	}

	switch envelope.Type {
	case domain.EventRoundUpdate:
		var r domain.Round
		if err := json.Unmarshal(envelope.Payload, &r); err != nil || r.ID == "" {
			return "", false
		}
		return domain.RoundChannel(r.ID), true
	case domain.EventNotification:
		var n domain.Notification
		if err := json.Unmarshal(envelope.Payload, &n); err != nil || n.UserID == "" {
			return "", false
		}
		return domain.UserChannel(n.UserID), true
	default:
		return "", false
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]bool),
	}

	select {
	case h.register <- c:
	case <-h.done:
		// The hub has stopped; nothing will service this connection.
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection and handles room
// subscription requests.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg clientMsg
		if err := json.Unmarshal(message, &msg); err != nil || msg.ID == "" {
			c.hub.logger.Debug("ws: ignoring malformed client message")
			continue
		}
		c.handleSubscribe(msg)
	}
}

// handleSubscribe processes a typed subscribe message. Unknown ids are a
// silent no-op: the caller receives no error and joins nothing, so room
// names never confirm whether an entity exists.
func (c *client) handleSubscribe(msg clientMsg) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, lookupTimeout)
	defer cancel()

	switch msg.Type {
	case "subscribe:round":
		round, err := c.hub.rounds.Get(ctx, msg.ID)
		if err != nil {
			c.hub.logger.Debug("ws: round subscribe ignored",
				slog.String("round_id", msg.ID),
			)
			return
		}

		c.join(domain.RoundChannel(round.ID))

		// Emit the current snapshot to the subscriber only.
		if event, err := domain.NewRoundUpdateEvent(round); err == nil {
			select {
			case c.send <- event:
			default:
			}
		}

	case "subscribe:user":
		user, err := c.hub.users.GetByID(ctx, msg.ID)
		if err != nil {
			c.hub.logger.Debug("ws: user subscribe ignored",
				slog.String("user_id", msg.ID),
			)
			return
		}
		c.join(domain.UserChannel(user.ID))

	default:
		c.hub.logger.Debug("ws: unknown message type",
			slog.String("type", msg.Type),
		)
	}
}

// join adds the client to a room.
func (c *client) join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

// inRoom checks whether the client has joined the given room.
func (c *client) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
