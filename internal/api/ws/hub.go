// Package ws streams zone transitions and notification commands to
// connected websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/notifications"
)

const (
	TypeTransition   = "transition"
	TypeNotification = "notification"

	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 16
	readLimit     = 512
)

// Message is the envelope written to clients.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans messages out to them. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]struct{}
	connected  atomic.Int64
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS is enforced by the router for browsers; the stream is read-only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			h.logger.Info("Websocket client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			h.drop(c)

		case data := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("Websocket client too slow, disconnecting")
					h.drop(c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.connected.Store(int64(len(h.clients)))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Publish queues a message for every client. It never blocks; when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Publish(typ string, payload interface{}) error {
	data, err := json.Marshal(Message{Type: typ, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", typ, err)
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return fmt.Errorf("websocket broadcast buffer full, %s dropped", typ)
	}
}

// Send implements notifications.Sender.
func (h *Hub) Send(_ context.Context, cmd notifications.Command) error {
	return h.Publish(TypeNotification, cmd)
}

// OnOutcome forwards engine transitions to clients.
func (h *Hub) OnOutcome(o engine.Outcome) {
	if err := h.Publish(TypeTransition, o); err != nil {
		h.logger.Warn("Transition not streamed", "error", err)
	}
}

// ServeHTTP upgrades the request and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

// writePump writes queued messages and pings. It owns all writes to conn.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Websocket read error", "error", err)
			}
			return
		}
	}
}
