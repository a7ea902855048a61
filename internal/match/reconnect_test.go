package match

import (
	"testing"
	"time"
)

// TestDisconnectDuringPlayHoldsSlot verifies an unconsented leave keeps the
// player until the grace window runs out
func TestDisconnectDuringPlayHoldsSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)

	if err := h.c.Leave("b", false); err != nil {
		t.Fatal(err)
	}
	b := h.player(t, "b")
	if b.Connected || !h.c.PendingReconnect("b") {
		t.Fatalf("connected %v pending %v", b.Connected, h.c.PendingReconnect("b"))
	}
	if h.c.state.Phase != PhasePlaying || h.c.state.Blue.PlayerCount != 1 {
		t.Fatalf("disconnect changed the match: %s blue=%d", h.c.state.Phase, h.c.state.Blue.PlayerCount)
	}
	if e, ok := h.out.last(EvtDisconnected); !ok || e.data.(PlayerPresenceMessage).PlayerID != "b" {
		t.Errorf("disconnect broadcast = %+v", e)
	}
	if h.sched.timers[0].d != 30*time.Second {
		t.Errorf("grace = %s", h.sched.timers[0].d)
	}

	h.sched.fire()
	if _, ok := h.c.state.Player("b"); ok {
		t.Fatal("player kept after grace expiry")
	}
	res, ok := h.c.LastResult()
	if !ok || res.WinningTeam != TeamRed || res.Cause != "team_empty" {
		t.Errorf("result = %+v", res)
	}
}

// TestReconnectResumes verifies the token check and a successful resume
// that keeps the player's stats
func TestReconnectResumes(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)
	h.kill(t, "b", "a")
	h.fire(t, "b")
	before := h.player(t, "b").Stats
	if before.Kills != 1 || before.Shots != 6 || before.Hits != 5 {
		t.Fatalf("stats before disconnect = %+v", before)
	}
	h.c.Leave("b", false)
	token := h.player(t, "b").reconnectToken

	_, err := h.c.Reconnect("b", "wrong")
	wantKind(t, err, KindValidation)
	if !h.c.PendingReconnect("b") {
		t.Fatal("bad token cancelled the grace wait")
	}
	_, err = h.c.Reconnect("a", token)
	wantKind(t, err, KindNotFound)

	w, err := h.c.Reconnect("b", token)
	if err != nil {
		t.Fatal(err)
	}
	if w.PlayerID != "b" || w.Team != TeamBlue || w.State != PhasePlaying {
		t.Errorf("welcome = %+v", w)
	}
	if !h.player(t, "b").Connected || h.c.PendingReconnect("b") {
		t.Error("player not resumed")
	}
	if after := h.player(t, "b").Stats; after != before {
		t.Errorf("stats after reconnect = %+v, want %+v", after, before)
	}
	if h.c.state.Blue.Score != 1 {
		t.Errorf("blue score = %d after reconnect", h.c.state.Blue.Score)
	}
	if _, ok := h.out.last(EvtReconnected); !ok {
		t.Error("no reconnect broadcast")
	}
	if h.sched.pending() != 0 {
		t.Errorf("grace timer still pending")
	}

	_, err = h.c.Reconnect("b", token)
	wantKind(t, err, KindNotFound)
}

// TestStaleGraceTimerIgnored verifies a timer from an earlier disconnect
// cannot remove a player who came back and dropped again
func TestStaleGraceTimerIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)
	token := h.player(t, "b").reconnectToken

	h.c.Leave("b", false)
	first := h.sched.timers[0]
	if _, err := h.c.Reconnect("b", token); err != nil {
		t.Fatal(err)
	}
	h.c.Leave("b", false)

	first.f()
	if _, ok := h.c.state.Player("b"); !ok {
		t.Fatal("stale timer removed the player")
	}
	if !h.c.PendingReconnect("b") {
		t.Fatal("stale timer cancelled the live wait")
	}

	h.sched.fire()
	if _, ok := h.c.state.Player("b"); ok {
		t.Error("live timer did not remove the player")
	}
}

// TestConsentedLeaveDuringPlay verifies explicit leaves skip the grace window
func TestConsentedLeaveDuringPlay(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b", "b2"})
	h.play(t)
	h.fire(t, "b")

	if err := h.c.Leave("b", true); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.c.state.Player("b"); ok {
		t.Fatal("player kept after consented leave")
	}
	if h.c.PendingReconnect("b") || h.sched.pending() != 0 {
		t.Error("consented leave started a grace wait")
	}
	if h.c.state.ProjectileCount() != 0 {
		t.Error("projectiles of the leaver survived")
	}
	if h.c.state.Phase != PhasePlaying {
		t.Errorf("phase = %s", h.c.state.Phase)
	}
	wantKind(t, h.c.Leave("b", true), KindNotFound)
}

// TestGraceExpiryAfterMatchEnd verifies a wait outliving its match still
// releases the slot without ending anything twice
func TestGraceExpiryAfterMatchEnd(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxScore = 1 })
	h.seat(t, []string{"a"}, []string{"b", "b2"})
	h.play(t)

	h.c.Leave("b2", false)
	h.kill(t, "a", "b")
	if h.c.state.Phase != PhaseEnded {
		t.Fatalf("phase = %s", h.c.state.Phase)
	}

	h.sched.timers[0].fired = true
	h.sched.timers[0].f()
	if _, ok := h.c.state.Player("b2"); ok {
		t.Error("expired player kept")
	}
	if len(h.sink.results) != 1 {
		t.Errorf("results offered = %d", len(h.sink.results))
	}
}
