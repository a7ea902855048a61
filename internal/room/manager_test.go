package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"tdm-server/internal/match"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(ManagerOptions{Config: testConfig(), PatchRate: 50})
	t.Cleanup(func() {
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Shutdown(c, "test over")
	})
	return m
}

// TestManagerFillsOpenRoom verifies joins share a listed room
func TestManagerFillsOpenRoom(t *testing.T) {
	m := newTestManager(t)

	r1, _, err := m.Join(ctx(t), "", "p1", "alice", "", newFakeConn())
	if err != nil {
		t.Fatal(err)
	}

	// wait for the room to publish itself
	deadline := time.Now().Add(2 * time.Second)
	for {
		if meta, ok := m.Directory().Get(r1.ID); ok && meta.Clients == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room never published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	r2, w, err := m.Join(ctx(t), match.ModeClassic, "p2", "bob", "", newFakeConn())
	if err != nil {
		t.Fatal(err)
	}
	if r2.ID != r1.ID {
		t.Errorf("Expected second player in room %s, got %s", r1.ID, r2.ID)
	}
	if w.Team != match.TeamBlue {
		t.Errorf("Expected blue for second player, got %s", w.Team)
	}
	if m.Count() != 1 {
		t.Errorf("Expected 1 room, got %d", m.Count())
	}
}

// TestManagerRejectsUnknownMode verifies only the configured mode is served
func TestManagerRejectsUnknownMode(t *testing.T) {
	m := newTestManager(t)
	_, _, err := m.Join(ctx(t), "ctf", "p1", "alice", "", newFakeConn())
	if !errors.Is(err, match.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Expected no room created, got %d", m.Count())
	}
}

// TestManagerDisposesEmptyRoom verifies the last leave closes the room
func TestManagerDisposesEmptyRoom(t *testing.T) {
	m := newTestManager(t)
	fc := newFakeConn()
	r, _, err := m.Join(ctx(t), "", "p1", "alice", "", fc)
	if err != nil {
		t.Fatal(err)
	}

	r.Post(Disconnect{ClientID: "p1", Conn: fc})

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Expected empty room to stop")
	}
	if _, ok := m.Get(r.ID); ok {
		t.Error("Expected room removed from manager")
	}
}

// TestManagerRejoinUnknownRoom verifies reconnecting to a missing room fails
func TestManagerRejoinUnknownRoom(t *testing.T) {
	m := newTestManager(t)
	_, _, err := m.Rejoin(ctx(t), "nope", "p1", "token", newFakeConn())
	if !errors.Is(err, match.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}
