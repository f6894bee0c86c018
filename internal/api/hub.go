package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/state"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Queued messages per client before it is dropped
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is read-only; any origin may watch
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the envelope for every message sent to websocket clients
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client is one websocket connection
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state snapshots out to websocket clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	current    func() state.State
	mu         sync.RWMutex
	nextID     atomic.Uint64
}

// NewHub creates a hub. current, if non-nil, supplies the snapshot each
// client receives when it registers. Call Run to start it.
func NewHub(current func() state.State) *Hub {
	return &Hub{
		current:    current,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled. Every snapshot received on
// updates is broadcast as a "state" event.
func (h *Hub) Run(ctx context.Context, updates <-chan state.State) {
	defer close(h.done)
	logging.Debug("Websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case snap, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			data, err := json.Marshal(Event{Type: "state", Data: snap})
			if err != nil {
				logging.Error("Failed to marshal state event", zap.Error(err))
				continue
			}
			h.fanOut(data)

		case data := <-h.broadcast:
			h.fanOut(data)

		case client := <-h.register:
			// The snapshot follows every update already drained
			if h.current != nil {
				if data, err := json.Marshal(Event{Type: "state", Data: h.current()}); err == nil {
					client.send <- data
				}
			}
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.Info("Websocket client connected",
				zap.Uint64("client_id", client.id),
				zap.Int("clients", n),
			)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Broadcast queues an event for every client. It does not block; the event
// is dropped if the queue is full.
func (h *Hub) Broadcast(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("Websocket broadcast queue full, dropping event", zap.String("type", ev.Type))
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// Client send buffer is full, drop it
			logging.Warn("Websocket client too slow, disconnecting",
				zap.Uint64("client_id", client.id),
			)
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	logging.Info("Websocket client disconnected",
		zap.Uint64("client_id", client.id),
		zap.Int("clients", n),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// serve upgrades the request and registers the connection. The hub queues
// the current snapshot at registration.
func (h *Hub) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := &Client{
		id:   h.nextID.Add(1),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- client:
	case <-ctx.Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Websocket read error",
					zap.Uint64("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump sends queued events and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
