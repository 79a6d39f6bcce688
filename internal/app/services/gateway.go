package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
	"voicerelay-server-go/internal/transport/ws"
)

const gatewayRequestTimeout = 5 * time.Second

// gatewayRequest is one inbound client message.
type gatewayRequest struct {
	Type      string `json:"type"`
	ClearSink bool   `json:"clear_sink,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// gatewayReply is one outbound message addressed to a single client.
// Sink edits are not sent here; those fan out through the hub broadcast.
type gatewayReply struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Command   string `json:"command,omitempty"`
	Listening *bool  `json:"listening,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GatewayConfig carries the gateway session dependencies.
type GatewayConfig struct {
	Relay  *RelayService
	Logger *logging.Logger
}

// GatewayService handles one automation client over the websocket
// gateway. Clients mirror the sink through broadcast frames and can
// send commit, reset and listen requests back.
type GatewayService struct {
	relay  *RelayService
	logger *logging.Logger

	conn     *ws.Connection
	clientID string
	closed   atomic.Bool
}

// NewGatewayService creates a per-connection gateway session service.
func NewGatewayService(cfg *GatewayConfig) (*GatewayService, error) {
	if cfg == nil || cfg.Relay == nil {
		return nil, errors.New(errors.KindConfig, "gateway.new", "gateway requires the relay service")
	}
	return &GatewayService{
		relay:  cfg.Relay,
		logger: cfg.Logger,
	}, nil
}

// Initialize binds the upgraded connection before the session starts.
func (s *GatewayService) Initialize(req *http.Request, conn *ws.Connection) error {
	if conn == nil {
		return errors.New(errors.KindTransport, "gateway.init", "connection is required")
	}
	s.conn = conn
	s.clientID = conn.GetID()
	return nil
}

// GetSessionID implements ws.SessionHandler. The hub keys sessions by
// this value.
func (s *GatewayService) GetSessionID() string {
	return s.clientID
}

// Handle implements ws.SessionHandler. It pushes the current sink text
// so the client can seed its field, then serves requests until the
// connection drops.
func (s *GatewayService) Handle() {
	s.sendSnapshot()
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.DebugTag("GATEWAY", "client %s read ended: %v", s.clientID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.logger.DebugTag("GATEWAY", "client %s sent non-text frame, ignored", s.clientID)
			continue
		}
		s.handleTextMessage(payload)
	}
}

// Close implements ws.SessionHandler.
func (s *GatewayService) Close() {
	s.closed.Store(true)
}

func (s *GatewayService) handleTextMessage(payload []byte) {
	var req gatewayRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError("malformed request")
		return
	}
	switch req.Type {
	case "commit":
		s.handleCommit()
	case "reset":
		s.handleReset(req.ClearSink)
	case "listen":
		s.handleListen(req.Enabled)
	case "snapshot":
		s.sendSnapshot()
	case "ping":
		s.send(gatewayReply{Type: "pong"})
	default:
		s.logger.WarnTag("GATEWAY", "client %s sent unknown request type %q", s.clientID, req.Type)
		s.sendError("unknown request type")
	}
}

func (s *GatewayService) handleCommit() {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayRequestTimeout)
	defer cancel()
	command, err := s.relay.CommitNow(ctx, "gateway")
	if err != nil {
		s.logger.WarnTag("GATEWAY", "commit from %s failed: %v", s.clientID, err)
		s.sendError("commit failed")
		return
	}
	s.send(gatewayReply{Type: "committed", Command: command})
}

func (s *GatewayService) handleReset(clearSink bool) {
	if err := s.relay.Restart(clearSink, "gateway"); err != nil {
		s.logger.WarnTag("GATEWAY", "reset from %s failed: %v", s.clientID, err)
		s.sendError("reset failed")
		return
	}
	s.send(gatewayReply{Type: "reset_requested"})
}

func (s *GatewayService) handleListen(enabled *bool) {
	if enabled == nil {
		s.sendError("listen requires enabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gatewayRequestTimeout)
	defer cancel()
	if err := s.relay.SetListening(ctx, *enabled); err != nil {
		s.logger.WarnTag("GATEWAY", "listen toggle from %s failed: %v", s.clientID, err)
		s.sendError("listen toggle failed")
		return
	}
	s.send(gatewayReply{Type: "listening", Listening: enabled})
}

func (s *GatewayService) sendSnapshot() {
	snap := s.relay.Snapshot()
	listening := snap.Listening
	s.send(gatewayReply{Type: "snapshot", Text: snap.SinkPreview, Listening: &listening})
}

func (s *GatewayService) sendError(msg string) {
	s.send(gatewayReply{Type: "error", Error: msg})
}

func (s *GatewayService) send(reply gatewayReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.ErrorTag("GATEWAY", "marshal reply failed: %v", err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.DebugTag("GATEWAY", "write to %s failed: %v", s.clientID, err)
	}
}

// GatewayHandlerBuilder adapts the relay into the websocket router's
// handler factory.
func GatewayHandlerBuilder(relay *RelayService, logger *logging.Logger) ws.HandlerBuilder {
	return func(conn *ws.Connection, req *http.Request) (ws.SessionHandler, error) {
		svc, err := NewGatewayService(&GatewayConfig{Relay: relay, Logger: logger})
		if err != nil {
			return nil, err
		}
		if err := svc.Initialize(req, conn); err != nil {
			return nil, err
		}
		return svc, nil
	}
}
