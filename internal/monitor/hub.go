// Package monitor streams query events to websocket clients and serves a
// small HTTP API over one database connection.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	// maxMessageSize bounds what clients may send; the stream is one-way.
	maxMessageSize = 512
	sendBuffer     = 256
)

// Message is the JSON frame sent for every executed statement.
type Message struct {
	Type         string  `json:"type"`
	ConnectionID string  `json:"connection_id"`
	Backend      string  `json:"backend"`
	Operation    string  `json:"operation"`
	Table        string  `json:"table,omitempty"`
	Statement    string  `json:"statement"`
	Bindings     []any   `json:"bindings,omitempty"`
	Rows         int64   `json:"rows"`
	DurationMS   float64 `json:"duration_ms"`
	Error        string  `json:"error,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

func messageOf(e query.Event) Message {
	typ := "query"
	if e.Error != "" {
		typ = "error"
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	return Message{
		Type:         typ,
		ConnectionID: e.ConnectionID,
		Backend:      e.Backend,
		Operation:    e.Operation,
		Table:        e.Table,
		Statement:    e.Statement,
		Bindings:     e.Bindings,
		Rows:         e.Rows,
		DurationMS:   float64(e.Duration.Microseconds()) / 1000,
		Error:        e.Error,
		Timestamp:    at.UTC().Format(time.RFC3339Nano),
	}
}

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans query events out to websocket clients. A client that cannot keep
// up is disconnected rather than slowing the connection down.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub; Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run handles registration and broadcasting until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					logging.WebSocketEvent("client_dropped", len(h.clients))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Observe implements query.Observer. It never blocks; events are dropped
// when the broadcast queue is full.
func (h *Hub) Observe(e query.Event) {
	data, err := json.Marshal(messageOf(e))
	if err != nil {
		logging.Error("failed to marshal query event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping event", "operation", e.Operation)
	}
}

var _ query.Observer = (*Hub)(nil)

// Handler upgrades requests to websocket subscriptions. An empty origins
// list accepts any origin.
func (h *Hub) Handler(origins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(r.Header.Get("Origin"), origins) },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		case <-r.Context().Done():
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
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
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump sends one frame per event and keeps the connection alive with
// pings.
func (c *Client) writePump() {
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
