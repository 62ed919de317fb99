// Package realtime keeps the live WebSocket connections of drivers and
// passengers and delivers events to them by id or by room.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halladj/vtc-sahra/internal/models"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one connected actor. Events queue on a bounded channel and are
// written by WritePump.
type Client struct {
	ID   string
	send chan models.Event
	once sync.Once
}

func (c *Client) Outbound() <-chan models.Event { return c.send }

func (c *Client) close() { c.once.Do(func() { close(c.send) }) }

// Hub implements dispatch.Publisher. Sends never block: a full or missing
// client drops the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// Attach registers id, replacing and closing any previous connection.
func (h *Hub) Attach(id string) *Client {
	c := &Client{ID: id, send: make(chan models.Event, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		old.close()
	}
	h.clients[id] = c
	h.logger.Info("ws_registered", "id", id)
	return c
}

// Detach removes c and reports whether it was still the current connection
// for its id. Room memberships are left for CloseRoom.
func (h *Hub) Detach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.close()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		h.logger.Info("ws_removed", "id", c.ID)
		return true
	}
	return false
}

func (h *Hub) Send(recipientID string, ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(recipientID, ev)
}

// deliver requires h.mu held.
func (h *Hub) deliver(id string, ev models.Event) {
	c, ok := h.clients[id]
	if !ok {
		h.logger.Debug("ws_send_no_session", "id", id, "type", ev.Type)
		return
	}
	select {
	case c.send <- ev:
	default:
		h.logger.Warn("ws_send_dropped", "id", id, "type", ev.Type)
	}
}

func (h *Hub) Join(room, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[id] = struct{}{}
}

func (h *Hub) Broadcast(room string, ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.rooms[room] {
		h.deliver(id, ev)
	}
}

func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, room)
}

func (h *Hub) Connected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// WritePump drains the client's queue onto conn and pings it until the queue
// is closed or a write fails. It closes conn on return.
func WritePump(conn *websocket.Conn, c *Client, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("ws_write_failed", "id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Warn("ws_ping_fail", "id", c.ID, "error", err)
				return
			}
		}
	}
}

// KeepAlive arms the read deadline and extends it on every pong.
func KeepAlive(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
