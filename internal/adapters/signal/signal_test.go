package signal_test

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	router "github.com/dkeye/Lesson/internal/adapters/http"
	"github.com/dkeye/Lesson/internal/adapters/signal"
	"github.com/dkeye/Lesson/internal/config"
	"github.com/dkeye/Lesson/internal/core"
	"github.com/dkeye/Lesson/internal/protocol"
	"github.com/dkeye/Lesson/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, string, *core.Coordinator) {
	srv, wsURL, coord, _ := newTestServerGW(t)
	return srv, wsURL, coord
}

func newTestServerGW(t *testing.T) (*httptest.Server, string, *core.Coordinator, *signal.Gateway) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Mode:          "release",
		Secret:        "test-secret",
		StaticPath:    dir,
		DatabasePath:  filepath.Join(dir, "test.db"),
		ReadLimit:     32768,
		WriteTimeout:  5 * time.Second,
		SendBuffer:    32,
		IdleThreshold: time.Hour,
	}
	gw := signal.NewGateway(cfg)
	coord := core.NewCoordinator(gw, cfg.IdleThreshold)
	gw.Attach(coord)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(router.SetupRouter(cfg, gw, coord, st))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	return srv, wsURL, coord, gw
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readServerMsg(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestJoinWithoutRoomIDRejected(t *testing.T) {
	_, wsURL, _ := newTestServer(t)
	conn := dial(t, wsURL)

	sendJSON(t, conn, map[string]any{
		"type":        "join",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "host"},
	})

	msg := readServerMsg(t, conn)
	em, ok := msg.(*protocol.ErrorMessage)
	if !ok {
		t.Fatalf("expected error envelope, got %T", msg)
	}
	if em.Message == "" {
		t.Fatal("error envelope should carry a message")
	}
}

func TestInvalidRoleRejectedConnectionSurvives(t *testing.T) {
	_, wsURL, _ := newTestServer(t)
	conn := dial(t, wsURL)

	sendJSON(t, conn, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "superuser"},
	})
	if _, ok := readServerMsg(t, conn).(*protocol.ErrorMessage); !ok {
		t.Fatal("expected error envelope for unknown role")
	}

	// Same connection can still join correctly afterwards.
	sendJSON(t, conn, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "host"},
	})
	if _, ok := readServerMsg(t, conn).(*protocol.SessionJoined); !ok {
		t.Fatal("expected sessionJoined after valid join")
	}
}

func TestUnknownMessageTypeDropped(t *testing.T) {
	_, wsURL, _ := newTestServer(t)
	conn := dial(t, wsURL)

	// Unrecognized types are logged and dropped, never answered and never
	// fatal to the connection.
	sendJSON(t, conn, map[string]any{"type": "teleport"})

	sendJSON(t, conn, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "host"},
	})
	msg := readServerMsg(t, conn)
	if _, ok := msg.(*protocol.SessionJoined); !ok {
		t.Fatalf("expected sessionJoined, got %T", msg)
	}
}

func TestMalformedFrameGetsErrorEnvelope(t *testing.T) {
	_, wsURL, _ := newTestServer(t)
	conn := dial(t, wsURL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := readServerMsg(t, conn).(*protocol.ErrorMessage); !ok {
		t.Fatal("expected error envelope for malformed frame")
	}
}

func TestBroadcastToRoomExcludesConnection(t *testing.T) {
	_, wsURL, coord, gw := newTestServerGW(t)

	alice := dial(t, wsURL)
	sendJSON(t, alice, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "host"},
	})
	if _, ok := readServerMsg(t, alice).(*protocol.SessionJoined); !ok {
		t.Fatal("expected sessionJoined")
	}

	bob := dial(t, wsURL)
	sendJSON(t, bob, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "bob", "displayName": "Bob", "role": "attendee"},
	})
	if _, ok := readServerMsg(t, bob).(*protocol.SessionJoined); !ok {
		t.Fatal("expected sessionJoined")
	}
	if _, ok := readServerMsg(t, alice).(*protocol.ParticipantJoined); !ok {
		t.Fatal("expected participantJoined at alice")
	}

	conns := coord.RoomConns("r1")
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections in room, got %d", len(conns))
	}

	// Exclude one of the two; exactly one client must hear the message,
	// whichever connection the exclusion landed on.
	gw.BroadcastToRoom("r1", protocol.NewError("lesson ending"), conns[0])

	got := 0
	for _, conn := range []*websocket.Conn{alice, bob} {
		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		if _, data, err := conn.ReadMessage(); err == nil {
			msg, derr := protocol.DecodeServer(data)
			if derr == nil {
				if em, ok := msg.(*protocol.ErrorMessage); ok && em.Message == "lesson ending" {
					got++
				}
			}
		}
	}
	if got != 1 {
		t.Fatalf("broadcast with exclusion must reach exactly one of two members, reached %d", got)
	}
}

func TestDisconnectRemovesParticipant(t *testing.T) {
	_, wsURL, coord := newTestServer(t)

	alice := dial(t, wsURL)
	sendJSON(t, alice, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "alice", "displayName": "Alice", "role": "host"},
	})
	if _, ok := readServerMsg(t, alice).(*protocol.SessionJoined); !ok {
		t.Fatal("expected sessionJoined")
	}

	bob := dial(t, wsURL)
	sendJSON(t, bob, map[string]any{
		"type":        "join",
		"roomId":      "r1",
		"participant": map[string]any{"identity": "bob", "displayName": "Bob", "role": "attendee"},
	})
	if _, ok := readServerMsg(t, bob).(*protocol.SessionJoined); !ok {
		t.Fatal("expected sessionJoined")
	}
	if _, ok := readServerMsg(t, alice).(*protocol.ParticipantJoined); !ok {
		t.Fatal("expected participantJoined at alice")
	}

	// Transport-level close, no leave message.
	_ = bob.Close()

	msg := readServerMsg(t, alice)
	pl, ok := msg.(*protocol.ParticipantLeft)
	if !ok {
		t.Fatalf("expected participantLeft, got %T", msg)
	}
	if pl.ParticipantIdentity != "bob" || len(pl.Participants) != 1 {
		t.Fatalf("unexpected left payload: %+v", pl)
	}

	rooms := coord.Rooms()
	if len(rooms) != 1 || rooms[0].ParticipantCount != 1 {
		t.Fatalf("unexpected rooms after disconnect: %+v", rooms)
	}
}
