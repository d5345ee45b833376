// Package hub keeps the live websocket connections, one per user and room, and
// writes frames to them in the order they were queued.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/pong-arena/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

type frame struct {
	messageType int
	data        []byte
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	Room   string
	UserID models.UserID

	mu       sync.Mutex
	closed   bool
	replaced bool
}

type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[models.UserID]*Client
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With(slog.String("component", "hub")),
		rooms:  make(map[string]map[models.UserID]*Client),
	}
}

func (h *Hub) NewClient(conn *websocket.Conn, room string, userID models.UserID) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		Room:   room,
		UserID: userID,
	}
}

// Register makes c the connection of its user in its room. An older connection of the
// same user is closed and marked as replaced.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.Room]
	if !ok {
		room = make(map[models.UserID]*Client)
		h.rooms[c.Room] = room
	}
	old := room[c.UserID]
	room[c.UserID] = c
	h.mu.Unlock()

	if old != nil && old != c {
		h.logger.Info("Connection replaced", slog.String("room", c.Room), slog.String("user_id", c.UserID.String()))
		old.mu.Lock()
		old.replaced = true
		old.mu.Unlock()
		old.closeSend()
	}
	h.logger.Debug("Client registered", slog.String("room", c.Room), slog.String("user_id", c.UserID.String()))
}

// Unregister removes c and reports whether its going away should be treated as the
// user leaving, which is false when a newer connection replaced it.
func (h *Hub) Unregister(c *Client) bool {
	h.drop(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.replaced
}

// drop closes c and removes it from its room unless a newer connection took its place.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.Room]; ok && room[c.UserID] == c {
		delete(room, c.UserID)
		if len(room) == 0 {
			delete(h.rooms, c.Room)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

func (h *Hub) client(room string, userID models.UserID) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[room][userID]
}

// Connected reports whether userID holds a connection in room.
func (h *Hub) Connected(room string, userID models.UserID) bool {
	return h.client(room, userID) != nil
}

func (h *Hub) SendJSON(room string, userID models.UserID, v any) {
	c := h.client(room, userID)
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode message", slog.String("room", room), slog.Any("error", err))
		return
	}
	h.enqueue(c, frame{messageType: websocket.TextMessage, data: data})
}

func (h *Hub) SendBinary(room string, userID models.UserID, data []byte) {
	c := h.client(room, userID)
	if c == nil {
		return
	}
	h.enqueue(c, frame{messageType: websocket.BinaryMessage, data: data})
}

// Disconnect closes the connection of userID in room after its queued frames are written.
func (h *Hub) Disconnect(room string, userID models.UserID) {
	h.mu.Lock()
	c := h.rooms[room][userID]
	if c != nil {
		delete(h.rooms[room], userID)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	if c != nil {
		c.closeSend()
	}
}

// enqueue drops a client that cannot keep up; losing frames would break their order.
func (h *Hub) enqueue(c *Client, f frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- f:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()

	h.logger.Warn("Client send buffer full, closing connection",
		slog.String("room", c.Room),
		slog.String("user_id", c.UserID.String()))
	h.drop(c)
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// ReadPump calls handle for every message read from the connection until it fails.
// It runs on the caller's goroutine.
func (c *Client) ReadPump(handle func(messageType int, data []byte)) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Unexpected websocket close",
					slog.String("room", c.Room),
					slog.String("user_id", c.UserID.String()),
					slog.Any("error", err))
			}
			return
		}
		handle(messageType, data)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings. It sends a
// close frame once the queue is closed and drained.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				c.hub.logger.Debug("Write failed",
					slog.String("room", c.Room),
					slog.String("user_id", c.UserID.String()),
					slog.Any("error", err))
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
