package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks progress-stream connections and which upload runs each one
// watches.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection id -> connection
	runs        map[string][]string    // run id -> connection ids
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string][]string),
		logger:      logger.With().Str("component", "ws_hub").Logger(),
	}
}

// RegisterConnection adds a connection, replacing any previous one with
// the same id.
func (h *Hub) RegisterConnection(id string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.connections[id]; exists {
		old.Close()
	}
	h.connections[id] = conn
	h.logger.Debug().Str("conn_id", id).Msg("connection registered")
}

// UnregisterConnection closes a connection and drops its subscriptions.
func (h *Hub) UnregisterConnection(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, exists := h.connections[id]; exists {
		conn.Close()
		delete(h.connections, id)
		h.logger.Debug().Str("conn_id", id).Msg("connection unregistered")
	}
	for runID := range h.runs {
		h.removeWatcher(runID, id)
	}
}

// Watch subscribes a connection to a run's progress events.
func (h *Hub) Watch(runID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.runs[runID] {
		if id == connID {
			return
		}
	}
	h.runs[runID] = append(h.runs[runID], connID)
}

// Unwatch removes a connection from a run.
func (h *Hub) Unwatch(runID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeWatcher(runID, connID)
}

func (h *Hub) removeWatcher(runID, connID string) {
	ids := h.runs[runID]
	for i, id := range ids {
		if id == connID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(h.runs, runID)
		return
	}
	h.runs[runID] = ids
}

// Watchers returns the connection ids watching a run.
func (h *Hub) Watchers(runID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.runs[runID]...)
}

// BroadcastToRun sends a message to every watcher of a run and returns the
// first delivery error.
func (h *Hub) BroadcastToRun(runID string, msg Message) error {
	var firstErr error
	for _, id := range h.Watchers(runID) {
		if err := h.SendTo(id, msg); err != nil && firstErr == nil {
			firstErr = err
			h.logger.Warn().Err(err).Str("conn_id", id).Str("run_id", runID).Msg("progress send failed")
		}
	}
	return firstErr
}

// SendTo delivers a message to one connection.
func (h *Hub) SendTo(id string, msg Message) error {
	h.mu.RLock()
	conn, exists := h.connections[id]
	h.mu.RUnlock()

	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 64),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
	if c.conn != nil {
		c.conn.Close()
	}
}

// WritePump sends queued messages until the connection is closed.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump receives messages and calls the handler.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
