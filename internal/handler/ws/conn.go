package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// wsConn serializes data writes on one websocket connection. Broadcasts
// arrive from other sessions' dispatches and from AI completion goroutines,
// and gorilla allows only one concurrent writer. Every write carries a
// deadline so a peer that stops reading fails the write instead of pinning
// its writer goroutine forever.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
