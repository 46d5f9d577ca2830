package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const clientBufSize = 64

// Client is one connected display client. The record is observational: other
// components read its metadata but never mutate it.
type Client struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`

	conn   *websocket.Conn
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn, remoteAddr, userAgent string) *Client {
	c := &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		conn:        conn,
		send:        make(chan []byte, clientBufSize),
	}
	go c.writePump()
	return c
}

// writePump is the single writer for the connection, preserving per-client
// delivery order.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue queues a frame for delivery. Delivery is best-effort: when the
// client is gone or its buffer is full the frame is dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
