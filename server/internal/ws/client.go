package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/floorscore/floorscore/server/internal/allocation"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10 // must be below pongWait
	sendBufSize  = 16
	readLimit    = 512
)

// client is one dashboard subscriber.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	sub    string // canonical query, the grouping key
	filter allocation.Filter
}

func newClient(conn *websocket.Conn, sub string, f allocation.Filter) *client {
	return &client{conn: conn, send: make(chan []byte, sendBufSize), sub: sub, filter: f}
}

// offer queues data without blocking and reports whether it fit.
func (c *client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop forwards queued dashboards and keeps the connection alive with
// pings. It exits when send is closed or a write fails.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var (
			kind = websocket.PingMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// readLoop discards client frames, handling pongs and noticing disconnects.
// The dashboard is push-only.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
