// Package websocket pushes auth-state changes to open pages so a sign-out
// in one tab is reflected in every other tab of the same session.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"room-web/internal/domain"
	"room-web/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 512
)

// ServerMessage is the only frame the server sends.
type ServerMessage struct {
	Type          string       `json:"type"`
	Event         string       `json:"event"`
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
	At            time.Time    `json:"at"`
}

// NewServerMessage maps an auth event to the frame sent to the browser.
func NewServerMessage(e session.Event) ServerMessage {
	return ServerMessage{
		Type:          "auth_state",
		Event:         string(e.Type),
		Authenticated: e.Type != session.EventSignedOut && e.User != nil,
		User:          e.User,
		At:            e.At,
	}
}

type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	sendMu  sync.Mutex
	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
}

// Notify queues e for the browser. Only the latest state matters, so a
// pending frame is replaced rather than queued behind.
func (c *Client) Notify(e session.Event) {
	data, err := json.Marshal(NewServerMessage(e))
	if err != nil {
		slog.Error("failed to marshal auth state", slog.String("error", err.Error()))
		return
	}
	c.Enqueue(data)
}

// Enqueue never blocks.
func (c *Client) Enqueue(data []byte) {
	if c.closed.Load() {
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.send:
	default:
	}
	c.send <- data
}

// ReadPump only services control frames. onClose runs once the peer goes
// away.
func (c *Client) ReadPump(onClose func()) {
	defer func() {
		if onClose != nil {
			onClose()
		}
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// WritePump pumps queued frames and pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline", slog.String("error", err.Error()))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Close ends both pumps.
func (c *Client) Close() {
	c.closeConnection()
}

func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
