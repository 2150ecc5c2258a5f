// internal/transport/ws/client.go

// Package ws is the websocket transport collaborator for the sync engine.
// It delivers decoded server events to a handler and offers fire-and-forget
// intent sends. Reconnect and backoff policy belong to the caller.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"geochat/internal/protocol"
)

// Config contains timing configuration for the websocket connection.
type Config struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultConfig returns the default websocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

// Client is a connected websocket transport. It owns the read pump and a
// ping loop; both stop when the connection drops or Close is called.
type Client struct {
	conn    *websocket.Conn
	cfg     Config
	handler func(protocol.Event)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Dial connects to the server and starts the read and ping pumps. Every
// decoded inbound event is passed to handler from the read goroutine.
func Dial(ctx context.Context, url string, handler func(protocol.Event), cfg Config) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error dialing %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		done:    make(chan struct{}),
	}

	go c.readPump()
	go c.pingLoop()

	return c, nil
}

// IsOpen reports whether the connection is usable for sends.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send marshals and transmits one intent. It returns an error when the
// connection is closed or the write fails; the caller decides whether that
// matters.
func (c *Client) Send(intent protocol.Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("error encoding intent: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("error writing intent: %w", err)
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.conn.Close()
}

// Done is closed when the connection has shut down, from either side.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readPump reads frames from the connection and hands decoded events to
// the handler until the connection drops.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			log.Printf("ws: discarding unparseable frame: %v", err)
			continue
		}
		c.handler(ev)
	}
}

// pingLoop keeps the connection alive. Control frames may be written
// concurrently with Send.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
