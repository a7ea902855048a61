package match

import (
	"testing"
	"time"
)

// TestFullLifecycle verifies the phase order from lobby back to lobby
func TestFullLifecycle(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxScore = 1 })
	h.c.Join("a", "alice", "user-a")
	h.c.Join("b", "bob", "")
	if h.c.state.Phase != PhaseLoading {
		t.Fatalf("phase = %s, want loading", h.c.state.Phase)
	}

	if err := h.c.Handle("a", ReadyCommand{Ready: true, LoadingProgress: 100}); err != nil {
		t.Fatal(err)
	}
	if h.c.state.Phase != PhaseLoading {
		t.Fatalf("one ready player moved to %s", h.c.state.Phase)
	}
	if err := h.c.Handle("b", ReadyCommand{Ready: true, LoadingProgress: 100}); err != nil {
		t.Fatal(err)
	}
	if h.c.state.Phase != PhaseCountdown || h.c.state.CountdownTime != 5 {
		t.Fatalf("phase = %s countdown %d", h.c.state.Phase, h.c.state.CountdownTime)
	}

	for i := 0; i < 5; i++ {
		h.c.Tick(time.Second)
	}
	if h.c.state.Phase != PhasePlaying {
		t.Fatalf("phase = %s, want playing", h.c.state.Phase)
	}
	var countdown []int
	for _, e := range h.out.events {
		if e.event == EvtCountdown {
			countdown = append(countdown, e.data.(CountdownMessage).Time)
		}
	}
	if len(countdown) != 5 || countdown[0] != 5 || countdown[4] != 1 {
		t.Errorf("countdown = %v, want 5..1", countdown)
	}
	if h.out.count(EvtStarted) != 1 {
		t.Errorf("started broadcasts = %d", h.out.count(EvtStarted))
	}
	for _, id := range []string{"a", "b"} {
		if p := h.player(t, id); !p.IsAlive || p.Health != MaxHealth || p.Position == lobbySpawn {
			t.Errorf("%s not spawned: %+v", id, p)
		}
	}

	h.kill(t, "a", "b")
	if h.c.state.Phase != PhaseEnded {
		t.Fatalf("phase = %s, want ended", h.c.state.Phase)
	}
	if len(h.sink.results) != 1 {
		t.Fatalf("results offered = %d", len(h.sink.results))
	}
	res := h.sink.results[0]
	if res.WinningTeam != TeamRed || res.Cause != "score_limit" || res.MVPID != "a" || res.MatchID != "match-1" {
		t.Errorf("result = %+v", res)
	}
	if ps, ok := res.Stats("a"); !ok || ps.UserID != "user-a" || ps.Kills != 1 {
		t.Errorf("a result = %+v", ps)
	}
	if last, ok := h.c.LastResult(); !ok || last.MatchID != res.MatchID {
		t.Errorf("last result = %+v", last)
	}
	wantKind(t, h.c.Handle("a", FireCommand{Direction: Vector3{X: 1}}), KindConflict)

	if h.sched.pending() != 1 || h.sched.timers[0].d != 15*time.Second {
		t.Fatalf("reset timer not scheduled: %+v", h.sched.timers)
	}
	h.sched.fire()
	if h.c.state.Phase != PhaseLobby {
		t.Fatalf("phase after reset = %s", h.c.state.Phase)
	}
	if h.c.state.MatchID != "match-2" || h.c.state.Locked {
		t.Errorf("match id %s locked %v", h.c.state.MatchID, h.c.state.Locked)
	}
	if h.c.state.Red.Score != 0 || h.c.state.ProjectileCount() != 0 {
		t.Errorf("scores or projectiles kept across reset")
	}
	a, b := h.player(t, "a"), h.player(t, "b")
	if a.Team != TeamRed || b.Team != TeamBlue {
		t.Errorf("teams changed: %s %s", a.Team, b.Team)
	}
	if a.Stats.Kills != 0 || !b.IsAlive || b.Health != MaxHealth || b.IsReady {
		t.Errorf("players not reset: %+v %+v", a, b)
	}
	if h.out.count(EvtReset) != 1 {
		t.Errorf("reset broadcasts = %d", h.out.count(EvtReset))
	}
}

// TestTeamEmptiedBeforePlay verifies losing a whole team while loading
// returns the room to the lobby
func TestTeamEmptiedBeforePlay(t *testing.T) {
	for _, phase := range []Phase{PhaseLoading, PhaseCountdown} {
		t.Run(string(phase), func(t *testing.T) {
			h := newHarness(t, nil)
			h.seat(t, []string{"a"}, []string{"b"})
			if phase == PhaseCountdown {
				h.c.Handle("a", ReadyCommand{Ready: true, LoadingProgress: 100})
				h.c.Handle("b", ReadyCommand{Ready: true, LoadingProgress: 100})
			}
			if h.c.state.Phase != phase {
				t.Fatalf("phase = %s", h.c.state.Phase)
			}

			if err := h.c.Leave("b", false); err != nil {
				t.Fatal(err)
			}
			if h.c.state.Phase != PhaseLobby || h.c.state.Locked || h.c.state.CountdownTime != 0 {
				t.Errorf("phase %s locked %v countdown %d", h.c.state.Phase, h.c.state.Locked, h.c.state.CountdownTime)
			}
			if a := h.player(t, "a"); a.IsReady {
				t.Error("readiness kept after abort")
			}
			if h.c.PendingReconnect("b") {
				t.Error("grace wait started outside of play")
			}
			if h.out.count(EvtReset) != 1 || h.c.state.MatchID != "match-1" {
				t.Errorf("reset broadcasts %d match %s", h.out.count(EvtReset), h.c.state.MatchID)
			}
			if _, ok := h.c.LastResult(); ok {
				t.Error("abort produced a result")
			}
		})
	}
}

// TestLeaveWhileLoadingRechecksReady verifies the remaining players can
// still start once the unready one leaves
func TestLeaveWhileLoadingRechecksReady(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a", "a2"}, []string{"b"})
	h.c.Handle("a", ReadyCommand{Ready: true, LoadingProgress: 100})
	h.c.Handle("b", ReadyCommand{Ready: true, LoadingProgress: 100})
	if h.c.state.Phase != PhaseLoading {
		t.Fatalf("phase = %s", h.c.state.Phase)
	}
	if err := h.c.Leave("a2", true); err != nil {
		t.Fatal(err)
	}
	if h.c.state.Phase != PhaseCountdown {
		t.Errorf("phase = %s, want countdown", h.c.state.Phase)
	}
}

// TestTeamEmptiedDuringPlay verifies the remaining team wins by default
func TestTeamEmptiedDuringPlay(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)

	if err := h.c.Handle("a", LeaveCommand{}); err != nil {
		t.Fatal(err)
	}
	if h.c.state.Phase != PhaseEnded {
		t.Fatalf("phase = %s", h.c.state.Phase)
	}
	if res, _ := h.c.LastResult(); res.WinningTeam != TeamBlue || res.Cause != "team_empty" {
		t.Errorf("result = %+v", res)
	}
}

// TestClockExpiry verifies a tied match on time goes to the smaller team
func TestClockExpiry(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MatchDuration = 3 })
	h.seat(t, []string{"a", "a2"}, []string{"b"})
	h.play(t)

	h.c.Tick(time.Second)
	h.c.Tick(1500 * time.Millisecond)
	if h.c.state.Phase != PhasePlaying || h.c.state.TimeRemaining != 1 {
		t.Fatalf("phase %s remaining %d", h.c.state.Phase, h.c.state.TimeRemaining)
	}
	h.c.Tick(500 * time.Millisecond)
	if h.c.state.Phase != PhaseEnded || h.c.state.TimeRemaining != 0 {
		t.Fatalf("phase %s remaining %d", h.c.state.Phase, h.c.state.TimeRemaining)
	}
	res, _ := h.c.LastResult()
	if res.WinningTeam != TeamBlue || res.Cause != "time_expired" || res.Duration != 3 {
		t.Errorf("result = %+v", res)
	}
}

// TestRespawnAndExpiry verifies dead players respawn and stale projectiles
// are dropped
func TestRespawnAndExpiry(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)
	h.kill(t, "a", "b")

	for i := 0; i < 4; i++ {
		h.c.Tick(time.Second)
	}
	b := h.player(t, "b")
	if b.IsAlive {
		t.Fatal("respawned early")
	}
	h.c.Tick(time.Second)
	if !b.IsAlive || b.Health != MaxHealth || b.RespawnTime != 0 || b.Animation != AnimIdle {
		t.Errorf("after respawn = %+v", b)
	}
	if b.Position.X < blueSpawnMinX || b.Position.X > blueSpawnMinX+spawnWidthX {
		t.Errorf("spawned outside the blue region: %+v", b.Position)
	}

	shot := h.fire(t, "b")
	h.c.Tick(10 * time.Second)
	if _, ok := h.c.state.Projectile(shot); !ok {
		t.Fatal("projectile expired at exactly its lifetime")
	}
	h.c.Tick(time.Millisecond)
	if _, ok := h.c.state.Projectile(shot); ok {
		t.Error("projectile outlived its lifetime")
	}
}

// TestShutdownSettlesMatch verifies a shutdown during play ends the match in
// favour of the leader
func TestShutdownSettlesMatch(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.play(t)
	h.kill(t, "b", "a")

	h.c.Shutdown("maintenance")
	e, ok := h.out.last(EvtShutdown)
	if !ok || e.data.(ShutdownMessage).Message != "maintenance" {
		t.Errorf("shutdown broadcast = %+v", e)
	}
	res, ok := h.c.LastResult()
	if !ok || res.WinningTeam != TeamBlue || res.Cause != "shutdown" {
		t.Errorf("result = %+v", res)
	}

	h.c.Close()
	h.sched.fire()
	if h.c.state.Phase != PhaseEnded {
		t.Errorf("reset ran after close: %s", h.c.state.Phase)
	}
}

// TestSummary verifies the listing counters
func TestSummary(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})
	h.c.Join("s", "watcher", "")
	h.c.Handle("a", ReadyCommand{Ready: true, LoadingProgress: 100})

	sum := h.c.Summary()
	if sum.RedTeamCount != 1 || sum.BlueTeamCount != 1 || sum.Spectators != 1 || sum.TotalPlayers != 3 {
		t.Errorf("counts = %+v", sum)
	}
	if sum.ReadyPlayers != 1 || sum.AlivePlayers != 2 || !sum.Locked || sum.State != PhaseLoading {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Players) != 3 || sum.Players[0].ID != "a" {
		t.Errorf("roster = %+v", sum.Players)
	}
}
