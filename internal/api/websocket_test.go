package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tdm-server/internal/match"
	"tdm-server/internal/protocol"
	"tdm-server/internal/room"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWSServer(t *testing.T, a *Auth) *httptest.Server {
	t.Helper()
	cfg := match.DefaultConfig()
	cfg.Seed = 1
	manager := room.NewManager(room.ManagerOptions{Config: cfg})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.Shutdown(ctx, "test over")
	})

	limiter := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Minute})
	t.Cleanup(limiter.Stop)
	ws := NewWebSocketHandler(manager, a, WebSocketConfig{Origins: []string{"http://localhost:*"}})
	ts := httptest.NewServer(NewRouter(RouterConfig{
		Rooms:          manager.Directory(),
		RoomCount:      manager.Count,
		WebSocket:      ws,
		RateLimiter:    limiter,
		DisableLogging: true,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads JSON frames until one carries event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if f.Event == event {
			return f
		}
	}
}

// TestWebSocketJoinWelcome verifies a client is seated and welcomed
func TestWebSocketJoinWelcome(t *testing.T) {
	ts := newWSServer(t, nil)
	conn := dial(t, wsURL(ts, "username=alice"))

	f := readUntil(t, conn, match.EvtWelcome)
	var w match.Welcome
	if err := json.Unmarshal(f.Data, &w); err != nil {
		t.Fatal(err)
	}
	if w.PlayerID == "" || w.ReconnectToken == "" || w.MatchID == "" {
		t.Errorf("welcome missing ids: %+v", w)
	}
	if w.State != match.PhaseLobby {
		t.Errorf("state = %s, want lobby", w.State)
	}
	if w.Team != match.TeamRed && w.Team != match.TeamBlue {
		t.Errorf("team = %q", w.Team)
	}
}

// TestWebSocketRejectsInvalidInput verifies malformed and unknown messages
// are answered with an error frame and the connection stays open
func TestWebSocketRejectsInvalidInput(t *testing.T) {
	ts := newWSServer(t, nil)
	conn := dial(t, wsURL(ts, "username=bob"))
	readUntil(t, conn, match.EvtWelcome)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","data":{}}`)); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, conn, match.EvtError)
	var msg match.ErrorMessage
	json.Unmarshal(f.Data, &msg)
	if msg.Code != "VALIDATION" || msg.Type != "teleport" {
		t.Errorf("error = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	f = readUntil(t, conn, match.EvtError)
	json.Unmarshal(f.Data, &msg)
	if msg.Code != "VALIDATION" {
		t.Errorf("malformed error = %+v", msg)
	}

	// still served
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":{"text":"hello"}}`))
	f = readUntil(t, conn, match.EvtChat)
	var chatMsg match.ChatMessage
	json.Unmarshal(f.Data, &chatMsg)
	if chatMsg.Sender != "bob" || chatMsg.Message != "hello" {
		t.Errorf("chat = %+v", chatMsg)
	}
}

// TestWebSocketMsgpackCodec verifies binary frames when msgpack is requested
func TestWebSocketMsgpackCodec(t *testing.T) {
	ts := newWSServer(t, nil)
	conn := dial(t, wsURL(ts, "username=carol&codec=msgpack"))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("frame type = %d, want binary", kind)
	}
	var out struct {
		Event string `msgpack:"event"`
	}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Event != match.EvtWelcome {
		t.Errorf("first event = %q, want welcome", out.Event)
	}
}

// TestWebSocketHandshakeRejections verifies requests refused before upgrade
func TestWebSocketHandshakeRejections(t *testing.T) {
	a := newTestAuth(t, newFakeUsers())
	ts := newWSServer(t, a)

	tests := []struct {
		name   string
		query  string
		origin string
		want   int
	}{
		{"unknown codec", "codec=xml", "", http.StatusBadRequest},
		{"bad token", "token=nope", "", http.StatusUnauthorized},
		{"foreign origin", "username=x", "https://evil.example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tt.query), header)
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Errorf("resp = %v, want status %d", resp, tt.want)
			}
		})
	}
}

// TestWebSocketTokenBindsProfile verifies a valid token is accepted and
// names the player
func TestWebSocketTokenBindsProfile(t *testing.T) {
	a := newTestAuth(t, newFakeUsers())
	ts := newWSServer(t, a)
	token, err := a.IssueToken("user-42", "dana")
	if err != nil {
		t.Fatal(err)
	}

	conn := dial(t, wsURL(ts, "token="+token))
	readUntil(t, conn, match.EvtWelcome)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":{"text":"gg"}}`))
	f := readUntil(t, conn, match.EvtChat)
	var chatMsg match.ChatMessage
	json.Unmarshal(f.Data, &chatMsg)
	if chatMsg.Sender != "dana" {
		t.Errorf("sender = %q, want dana", chatMsg.Sender)
	}
}

// TestWebSocketRejoinUnknownRoom verifies a reconnect to a missing room is
// refused with NOT_FOUND
func TestWebSocketRejoinUnknownRoom(t *testing.T) {
	ts := newWSServer(t, nil)
	conn := dial(t, wsURL(ts, "room=missing&playerId=p1&reconnectToken=t"))

	f := readUntil(t, conn, match.EvtError)
	var msg match.ErrorMessage
	json.Unmarshal(f.Data, &msg)
	if msg.Code != "NOT_FOUND" || msg.Type != "join" {
		t.Errorf("error = %+v", msg)
	}
}

// TestClientSendNeverBlocks verifies a full buffer is reported, not waited on
func TestClientSendNeverBlocks(t *testing.T) {
	c := &client{
		codec:  protocol.JSON,
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("b")); err != errSendBufferFull {
		t.Errorf("err = %v, want errSendBufferFull", err)
	}
	c.Close()
	c.Close()
	if err := c.Send([]byte("c")); err != errClientClosed {
		t.Errorf("err after close = %v, want errClientClosed", err)
	}
}
