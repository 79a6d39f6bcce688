package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voicerelay-server-go/internal/platform/logging"
	"voicerelay-server-go/internal/platform/observability"
)

// HandlerBuilder creates a session handler for an upgraded connection.
type HandlerBuilder func(conn *Connection, req *http.Request) (SessionHandler, error)

// Router upgrades HTTP requests into gateway sessions and registers them
// with the hub.
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the upgrade behaviour.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

// NewRouter constructs a gateway router. Origins are accepted by default
// because automation clients connect from arbitrary local hosts.
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         &websocket.Upgrader{CheckOrigin: checkOrigin},
		handshakeTimeout: timeout,
	}
}

// SetHandlerBuilder registers the factory invoked after each upgrade.
// The gateway serves 503 until one is set.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the request and launches the session goroutine.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "gateway handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	// The deadline covers the upgrade only; the session created below
	// outlives this request.
	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.gateway", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "gateway.upgrade.error", 1, map[string]string{
			"component": "transport.gateway",
		})
		r.logger.ErrorTag("GATEWAY", "handshake failed: %v", err)
		return
	}

	clientID := resolveClientID(req, conn)
	wsConn := NewConnection(clientID, conn)
	r.logger.InfoTag("GATEWAY", "client connected: %s", clientID)
	observability.RecordMetric(spanCtx, "gateway.upgrade.success", 1, map[string]string{
		"component": "transport.gateway",
	})

	handler, err := builder(wsConn, req)
	if err != nil || handler == nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "gateway.connection.error", 1, map[string]string{
			"component": "transport.gateway",
			"reason":    "handler_creation_failed",
		})
		r.logger.ErrorTag("GATEWAY", "handler creation failed: %v", err)
		_ = wsConn.Close()
		return
	}

	session := NewSession(handler, wsConn, r.logger)
	r.hub.Register(session)
	observability.RecordMetric(spanCtx, "gateway.connection.opened", 1, map[string]string{
		"component": "transport.gateway",
		"client_id": clientID,
	})

	go session.Run(func() {
		r.hub.Unregister(session.ID())
		r.logger.InfoTag("GATEWAY", "client disconnected: %s", clientID)
		observability.RecordMetric(context.Background(), "gateway.connection.closed", 1, map[string]string{
			"component": "transport.gateway",
			"client_id": clientID,
		})
	})
}

// resolveClientID prefers the Client-Id header, then the query string,
// then falls back to a per-connection value.
func resolveClientID(req *http.Request, conn *websocket.Conn) string {
	clientID := req.Header.Get("Client-Id")
	if clientID == "" {
		clientID = req.URL.Query().Get("client-id")
	}
	if clientID == "" {
		clientID = fmt.Sprintf("%p", conn)
	}
	return clientID
}
