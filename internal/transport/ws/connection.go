package ws

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Writes time out rather than block: the hub fans sink frames out from
// the relay loop, and one stalled client must not hold the pipeline.
const defaultWriteTimeout = 5 * time.Second

// Connection wraps one gorilla socket. The write path is serialized
// because the hub broadcast and the session handler both send frames.
type Connection struct {
	id           string
	socket       *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

// NewConnection wraps an upgraded socket under the given client id.
func NewConnection(id string, socket *websocket.Conn) *Connection {
	return &Connection{
		id:           id,
		socket:       socket,
		writeTimeout: defaultWriteTimeout,
	}
}

// WriteMessage sends one frame to the client, bounded by the write
// timeout.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("connection %s already closed", c.id)
	}

	if err := c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.socket.WriteMessage(messageType, data)
}

// ReadMessage receives the next frame from the client.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.socket.ReadMessage()
}

// Close terminates the underlying socket. Later calls return nil.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// GetID returns the client identifier.
func (c *Connection) GetID() string {
	return c.id
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
