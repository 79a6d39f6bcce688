package ws

import (
	"encoding/json"
	"sync"

	"voicerelay-server-go/internal/platform/logging"
)

// Hub tracks the active gateway sessions and fans sink frames out to them.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// Broadcast marshals the payload once and delivers it to every connected
// client. A client that fails the write is skipped; its own read loop
// notices the dead connection and unregisters it.
func (h *Hub) Broadcast(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		if err := session.Send(data); err != nil {
			h.logger.DebugTag("GATEWAY", "broadcast to %s failed: %v", session.ID(), err)
		}
		return true
	})
	return nil
}

// CloseAll closes every active session and empties the hub. Closing a
// session unblocks its read loop, so the session goroutines drain on
// their own.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrServerShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Clients reports the number of connected gateway clients.
func (h *Hub) Clients() int {
	n := 0
	h.sessions.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
