package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tdm-server/internal/match"
	"tdm-server/internal/room"
)

// TestServerWiring verifies the assembled server serves REST and tracks
// open websocket connections
func TestServerWiring(t *testing.T) {
	cfg := match.DefaultConfig()
	cfg.Seed = 1
	manager := room.NewManager(room.ManagerOptions{Config: cfg})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.Shutdown(ctx, "test over")
	})

	s := NewServer(ServerConfig{
		Addr:      "127.0.0.1:0",
		Rooms:     manager,
		Directory: manager.Directory(),
		RoomCount: manager.Count,
		RateLimit: RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Minute},
	})
	t.Cleanup(s.Stop)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	conn := dial(t, wsURL(ts, "username=erin"))
	readUntil(t, conn, match.EvtWelcome)
	if n := s.ws.ActiveConnections(); n != 1 {
		t.Errorf("active = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.ws.ActiveConnections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("active = %d after close, want 0", s.ws.ActiveConnections())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
