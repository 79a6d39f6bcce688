package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voicerelay-server-go/internal/domain/detect"
	"voicerelay-server-go/internal/domain/session"
	"voicerelay-server-go/internal/domain/sink"
	"voicerelay-server-go/internal/transport/ws"
)

type gatewayFixture struct {
	relay *RelayService
	lc    *fakeLifecycle
	hub   *ws.Hub
	srv   *httptest.Server
	sink  sink.Sink
}

// newGatewayFixture stands up the full gateway stack: hub, router, the
// handler builder and a relay. With mirror=true the relay writes into a
// gateway sink so edits broadcast to connected clients.
func newGatewayFixture(t *testing.T, mirror, autoSubmit bool, triggers [][2]string) *gatewayFixture {
	t.Helper()
	hub := ws.NewHub(nil)

	var target sink.Sink
	if mirror {
		gw, err := sink.NewGateway(hub, nil)
		if err != nil {
			t.Fatalf("NewGateway failed: %v", err)
		}
		target = gw
	} else {
		target = sink.NewMemory(nil)
	}

	lc := &fakeLifecycle{}
	relay, err := NewRelayService(&RelayConfig{
		Detector:   detect.New(detect.Config{}),
		Sink:       target,
		Registry:   newTestRegistry(t, triggers),
		AutoSubmit: autoSubmit,
	})
	if err != nil {
		t.Fatalf("NewRelayService failed: %v", err)
	}
	relay.BindLifecycle(lc)
	t.Cleanup(func() { relay.Close() })

	router := ws.NewRouter(hub, nil, ws.RouterOptions{})
	router.SetHandlerBuilder(GatewayHandlerBuilder(relay, nil))
	srv := httptest.NewServer(http.HandlerFunc(router.Handle))
	t.Cleanup(srv.Close)

	return &gatewayFixture{relay: relay, lc: lc, hub: hub, srv: srv, sink: target}
}

func dialGateway(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?client-id=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// awaitType reads frames until one with the wanted type arrives.
// Broadcast frames and replies share the connection, so unrelated
// frames are skipped.
func awaitType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed while waiting for %q: %v", want, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("malformed frame %q: %v", payload, err)
		}
		if msg["type"] == want {
			return msg
		}
	}
	t.Fatalf("no %q frame arrived", want)
	return nil
}

func TestGatewayService_SnapshotOnConnect(t *testing.T) {
	fx := newGatewayFixture(t, false, false, [][2]string{{"클로드", "assistant"}})

	fx.relay.OnFragment(frag("클로드 불 꺼줘", false))
	waitUntil(t, func() bool { return fx.sink.Preview() == "불 꺼줘" }, "command typed")

	conn := dialGateway(t, fx.srv, "panel-1")
	snap := awaitType(t, conn, "snapshot")
	if snap["text"] != "불 꺼줘" {
		t.Fatalf("snapshot text = %v", snap["text"])
	}
	if snap["listening"] != false {
		t.Fatalf("snapshot listening = %v", snap["listening"])
	}
}

func TestGatewayService_CommitRoundtrip(t *testing.T) {
	fx := newGatewayFixture(t, false, false, [][2]string{{"클로드", "assistant"}})

	fx.relay.OnFragment(frag("클로드 불 꺼줘", false))
	waitUntil(t, func() bool { return fx.sink.Preview() == "불 꺼줘" }, "command typed")

	conn := dialGateway(t, fx.srv, "panel-1")
	awaitType(t, conn, "snapshot")

	sendJSON(t, conn, map[string]any{"type": "commit"})
	reply := awaitType(t, conn, "committed")
	if reply["command"] != "불 꺼줘" {
		t.Fatalf("committed command = %v", reply["command"])
	}

	waitUntil(t, func() bool { return fx.lc.resetCount() == 2 }, "commit should request a restart")
	req := fx.lc.reset(1)
	if req.Reason != session.ReasonExternalCommit || req.SourceComponent != "gateway" {
		t.Fatalf("unexpected commit reset: %+v", req)
	}
}

func TestGatewayService_ListenToggle(t *testing.T) {
	fx := newGatewayFixture(t, false, false, nil)

	conn := dialGateway(t, fx.srv, "panel-1")
	awaitType(t, conn, "snapshot")

	sendJSON(t, conn, map[string]any{"type": "listen", "enabled": true})
	reply := awaitType(t, conn, "listening")
	if reply["listening"] != true {
		t.Fatalf("listening reply = %v", reply["listening"])
	}
	if fx.lc.startCount() != 1 {
		t.Fatalf("start count = %d", fx.lc.startCount())
	}

	sendJSON(t, conn, map[string]any{"type": "listen"})
	errReply := awaitType(t, conn, "error")
	if errReply["error"] == "" {
		t.Fatalf("listen without enabled should error")
	}
}

func TestGatewayService_ResetRequest(t *testing.T) {
	fx := newGatewayFixture(t, false, false, nil)

	conn := dialGateway(t, fx.srv, "panel-1")
	awaitType(t, conn, "snapshot")

	sendJSON(t, conn, map[string]any{"type": "reset", "clear_sink": true})
	awaitType(t, conn, "reset_requested")

	waitUntil(t, func() bool { return fx.lc.resetCount() == 1 }, "reset should reach the controller")
	req := fx.lc.reset(0)
	if req.Reason != session.ReasonUserToggle || !req.ClearSink || req.SourceComponent != "gateway" {
		t.Fatalf("unexpected reset request: %+v", req)
	}
}

func TestGatewayService_PingAndUnknownRequests(t *testing.T) {
	fx := newGatewayFixture(t, false, false, nil)

	conn := dialGateway(t, fx.srv, "panel-1")
	awaitType(t, conn, "snapshot")

	sendJSON(t, conn, map[string]any{"type": "ping"})
	awaitType(t, conn, "pong")

	sendJSON(t, conn, map[string]any{"type": "dance"})
	reply := awaitType(t, conn, "error")
	if reply["error"] != "unknown request type" {
		t.Fatalf("error reply = %v", reply["error"])
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply = awaitType(t, conn, "error")
	if reply["error"] != "malformed request" {
		t.Fatalf("error reply = %v", reply["error"])
	}
}

func TestGatewayService_EditsBroadcastToAllClients(t *testing.T) {
	fx := newGatewayFixture(t, true, true, [][2]string{{"클로드", "assistant"}})

	first := dialGateway(t, fx.srv, "panel-1")
	second := dialGateway(t, fx.srv, "panel-2")
	awaitType(t, first, "snapshot")
	awaitType(t, second, "snapshot")

	fx.relay.OnFragment(frag("클로드 불 꺼줘", false))

	for _, conn := range []*websocket.Conn{first, second} {
		edit := awaitType(t, conn, "edit")
		if edit["append_text"] != "불 꺼줘" {
			t.Fatalf("edit frame = %v", edit)
		}
		if _, hasDelete := edit["delete_count"]; hasDelete {
			t.Fatalf("zero delete count should be omitted, got %v", edit)
		}
	}

	// The mirror inside the gateway sink tracks what clients hold.
	if fx.sink.Preview() != "불 꺼줘" {
		t.Fatalf("mirror = %q", fx.sink.Preview())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := fx.relay.CommitNow(ctx, "test"); err != nil {
		t.Fatalf("CommitNow failed: %v", err)
	}
	awaitType(t, first, "commit")
	awaitType(t, second, "commit")
}

func TestGatewayService_BuilderRequiresRelay(t *testing.T) {
	if _, err := NewGatewayService(nil); err == nil {
		t.Fatalf("nil config should fail")
	}
	if _, err := NewGatewayService(&GatewayConfig{}); err == nil {
		t.Fatalf("missing relay should fail")
	}
}
