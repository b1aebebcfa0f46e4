package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tasktide/tasktide-backend/pkg/config"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

var validate = validator.New()

const (
	actionJoinTask   = "join-task"
	actionLeaveTask  = "leave-task"
	actionJoinBoard  = "join-board"
	actionLeaveBoard = "leave-board"
)

// controlMessage is the inbound frame clients send to manage subscriptions.
// TaskID is required for the task-scoped actions.
type controlMessage struct {
	Type   string `json:"type" validate:"required,oneof=join-task leave-task join-board leave-board"`
	TaskID string `json:"taskId" validate:"omitempty,uuid"`
}

// Client is one live WebSocket connection.
type Client struct {
	ID     string
	UserID string

	hub  *Hub
	conn *websocket.Conn
	cfg  config.WSConfig
	logg *logger.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewClient wraps an upgraded connection. UserID is empty for anonymous
// connections when auth is disabled.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, cfg config.WSConfig, logg *logger.Logger) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		cfg:    cfg,
		logg:   logg,
		send:   make(chan []byte, buffer),
	}
}

// enqueue offers one outbound frame without blocking. It reports false when
// the buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Connection is shutting down; not a delivery failure.
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump consumes control messages until the connection drops, then
// unregisters the client. Runs in its own goroutine per connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	logCtx := c.logg.WithField(context.Background(), "client_id", c.ID)

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "websocket read failed")
			}
			return
		}
		c.handleControl(logCtx, raw)
	}
}

// handleControl applies one subscription change. Invalid frames are logged
// and ignored; they never terminate the connection.
func (c *Client) handleControl(ctx context.Context, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "discarding malformed control message")
		return
	}
	if err := validate.Struct(msg); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "discarding invalid control message")
		return
	}

	switch msg.Type {
	case actionJoinTask, actionLeaveTask:
		if msg.TaskID == "" {
			c.logg.Warn(c.logg.WithField(ctx, "type", msg.Type), "control message missing task id")
			return
		}
		if msg.Type == actionJoinTask {
			c.hub.Join(c, TaskRoom(msg.TaskID))
		} else {
			c.hub.Leave(c, TaskRoom(msg.TaskID))
		}
	case actionJoinBoard:
		c.hub.Join(c, GlobalRoom)
	case actionLeaveBoard:
		c.hub.Leave(c, GlobalRoom)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings. Runs in its own goroutine per connection.
func (c *Client) writePump() {
	pingPeriod := c.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
