package ws

import (
	"sync/atomic"

	"github.com/gorilla/websocket"

	"voicerelay-server-go/internal/platform/logging"
)

// SessionHandler drives one connected automation client: Handle consumes
// inbound control frames until the connection drops. Close only flags
// the handler to stop and must not block; the read loop exits when the
// connection underneath it closes.
type SessionHandler interface {
	Handle()
	Close()
	GetSessionID() string
}

// Session ties one connection to its handler and guarantees the pair is
// torn down exactly once, whether the client disconnected or the server
// is shutting down.
type Session struct {
	id      string
	handler SessionHandler
	conn    *Connection
	logger  *logging.Logger

	closed atomic.Bool
}

// NewSession constructs a managed gateway session.
func NewSession(handler SessionHandler, conn *Connection, logger *logging.Logger) *Session {
	return &Session{
		id:      handler.GetSessionID(),
		handler: handler,
		conn:    conn,
		logger:  logger,
	}
}

// ID exposes the session identifier the hub keys on.
func (s *Session) ID() string {
	return s.id
}

// Send writes a text frame to the client.
func (s *Session) Send(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Run serves the handler until the connection ends, then tears the
// session down and invokes onDone.
func (s *Session) Run(onDone func()) {
	defer func() {
		s.Close(nil)
		if onDone != nil {
			onDone()
		}
	}()

	s.handler.Handle()
}

// Close tears the session down. The reason is recorded for operators;
// nil means the client side ended the connection.
func (s *Session) Close(reason error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if reason == nil {
		reason = ErrClientGone
	}

	s.handler.Close()
	if err := s.conn.Close(); err != nil {
		s.logger.WarnTag("GATEWAY", "session %s connection close failed: %v", s.id, err)
		return
	}
	s.logger.DebugTag("GATEWAY", "session %s closed: %v", s.id, reason)
}
