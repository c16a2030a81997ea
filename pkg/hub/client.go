package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout  = 5 * time.Second
	readIdle      = 60 * time.Second
	pingInterval  = readIdle * 9 / 10
	maxInboundLen = 1024
)

// Conn is the slice of a websocket connection the client needs.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one subscriber connection.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// NewClient subscribes conn to h. The greeting messages are delivered
// before anything published afterwards. If the hub has already stopped
// the client starts out closed.
func NewClient(h *Hub, conn Conn, greeting ...Message) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, queueSize),
	}
	for _, m := range greeting {
		c.offer(m)
	}
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
	return c
}

// offer queues m, discarding the oldest queued message when full.
// It reports whether nothing was lost. Only the hub goroutine calls it
// once the client is registered.
func (c *Client) offer(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- m:
	default:
	}
	return false
}

// Run serves the connection until either side closes it. Call it from the
// websocket handler; it blocks.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

// readLoop discards inbound frames; it exists to notice disconnects and
// to process pongs.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundLen)
	c.conn.SetReadDeadline(time.Now().Add(readIdle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readIdle))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the connection's only writer.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
