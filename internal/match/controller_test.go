package match

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// fakeTimer is a scheduled callback that only runs when the test fires it.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler records timers instead of running them.
type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs every timer that is still pending.
func (s *fakeScheduler) fire() {
	for _, t := range s.timers {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
	}
}

func (s *fakeScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sentEvent struct {
	to    string // empty for broadcasts
	event string
	data  any
}

// fakeBroadcaster records outbound events in order.
type fakeBroadcaster struct {
	events []sentEvent
}

func (b *fakeBroadcaster) Broadcast(event string, data any) {
	b.events = append(b.events, sentEvent{event: event, data: data})
}

func (b *fakeBroadcaster) Send(playerID, event string, data any) {
	b.events = append(b.events, sentEvent{to: playerID, event: event, data: data})
}

func (b *fakeBroadcaster) count(event string) int {
	n := 0
	for _, e := range b.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (b *fakeBroadcaster) last(event string) (sentEvent, bool) {
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].event == event {
			return b.events[i], true
		}
	}
	return sentEvent{}, false
}

func (b *fakeBroadcaster) names() []string {
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.event)
	}
	return out
}

type fakeSink struct {
	results []MatchResult
}

func (s *fakeSink) Offer(r MatchResult) { s.results = append(s.results, r) }

type fakeChat struct{ allow bool }

func (f fakeChat) Allow(string) bool { return f.allow }

type harness struct {
	c     *Controller
	out   *fakeBroadcaster
	sched *fakeScheduler
	sink  *fakeSink
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		out:   &fakeBroadcaster{},
		sched: &fakeScheduler{},
		sink:  &fakeSink{},
	}
	ids := 0
	h.c = NewController(Options{
		RoomID:      "room-1",
		Config:      cfg,
		Scheduler:   h.sched,
		Broadcaster: h.out,
		Results:     h.sink,
		Now:         func() time.Time { return time.Unix(1700000000, 0) },
		NewMatchID: func() string {
			ids++
			return fmt.Sprintf("match-%d", ids)
		},
	})
	return h
}

// seat joins every id and places it on the requested team, then runs the
// lobby check once.
func (h *harness) seat(t *testing.T, red, blue []string) {
	t.Helper()
	place := func(ids []string, team Team) {
		for _, id := range ids {
			p, err := h.c.roster.Join(id, id)
			if err != nil {
				t.Fatalf("join %s: %v", id, err)
			}
			h.c.state.moveTeam(p, team)
		}
	}
	place(red, TeamRed)
	place(blue, TeamBlue)
	h.c.checkLobbyReady()
	if h.c.state.Phase != PhaseLoading {
		t.Fatalf("phase after seating = %s, want loading", h.c.state.Phase)
	}
}

// play readies every combatant and runs the countdown out.
func (h *harness) play(t *testing.T) {
	t.Helper()
	for _, p := range h.c.state.Players() {
		if !p.isCombatant() {
			continue
		}
		if err := h.c.Handle(p.ID, ReadyCommand{Ready: true, LoadingProgress: 100}); err != nil {
			t.Fatalf("ready %s: %v", p.ID, err)
		}
	}
	for i := 0; i < h.c.cfg.CountdownSeconds; i++ {
		h.c.Tick(time.Second)
	}
	if h.c.state.Phase != PhasePlaying {
		t.Fatalf("phase after countdown = %s, want playing", h.c.state.Phase)
	}
}

func (h *harness) player(t *testing.T, id string) *Player {
	t.Helper()
	p, ok := h.c.state.Player(id)
	if !ok {
		t.Fatalf("player %s not tracked", id)
	}
	return p
}

func (h *harness) fire(t *testing.T, shooter string) string {
	t.Helper()
	if err := h.c.Handle(shooter, FireCommand{Direction: Vector3{X: 1}}); err != nil {
		t.Fatalf("fire by %s: %v", shooter, err)
	}
	return fmt.Sprintf("%s_%d", shooter, h.c.combat.counter)
}

func (h *harness) kill(t *testing.T, shooter, target string) {
	t.Helper()
	for i := 0; i < MaxHealth/h.c.cfg.ProjectileDamage; i++ {
		id := h.fire(t, shooter)
		if err := h.c.Handle(shooter, HitCommand{ProjectileID: id, TargetID: target}); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
}

func wantKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %s", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("err = %v (%s), want %s", err, got, want)
	}
}

// TestJoinSendsWelcomeBeforeLoading verifies the joining client gets its
// welcome before the loading broadcast it triggered
func TestJoinSendsWelcomeBeforeLoading(t *testing.T) {
	h := newHarness(t, nil)

	w1, err := h.c.Join("a", "alice", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if w1.Team != TeamRed || w1.State != PhaseLobby || w1.MatchID != "match-1" || w1.ReconnectToken == "" {
		t.Errorf("first welcome = %+v", w1)
	}
	if _, err := h.c.Join("b", "bob", ""); err != nil {
		t.Fatal(err)
	}

	got := h.out.names()
	want := []string{EvtWelcome, EvtWelcome, EvtLoading}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if h.out.events[1].to != "b" {
		t.Errorf("second welcome sent to %q", h.out.events[1].to)
	}
	if !h.c.state.Locked {
		t.Error("room should lock when loading starts")
	}
	if p := h.player(t, "a"); p.UserID != "user-1" {
		t.Errorf("user id = %q", p.UserID)
	}

	w3, err := h.c.Join("c", "carol", "")
	if err != nil {
		t.Fatal(err)
	}
	if w3.Team != TeamSpectator || w3.State != PhaseLoading {
		t.Errorf("late joiner welcome = %+v", w3)
	}
}

// TestHandleMove verifies movement is applied, ignored or rejected
func TestHandleMove(t *testing.T) {
	h := newHarness(t, nil)
	h.seat(t, []string{"a"}, []string{"b"})

	pos := Vector3{X: 3, Y: 1, Z: -2}
	if err := h.c.Handle("a", MoveCommand{Position: pos, Rotation: IdentityRotation, Animation: AnimRunning}); err != nil {
		t.Fatal(err)
	}
	p := h.player(t, "a")
	if p.Position != pos || p.Animation != AnimRunning {
		t.Errorf("player = %+v", p)
	}

	if err := h.c.Handle("ghost", MoveCommand{Position: pos}); err != nil {
		t.Errorf("unknown mover: %v", err)
	}

	err := h.c.Handle("a", MoveCommand{Position: Vector3{X: math.NaN()}, Rotation: IdentityRotation})
	wantKind(t, err, KindValidation)

	err = h.c.Handle("a", MoveCommand{Rotation: IdentityRotation, Animation: "flying"})
	wantKind(t, err, KindValidation)
	if p.Position != pos {
		t.Error("rejected move changed the position")
	}

	p.IsAlive = false
	if err := h.c.Handle("a", MoveCommand{Position: Vector3{}, Rotation: IdentityRotation}); err != nil {
		t.Errorf("dead mover: %v", err)
	}
	if p.Position != pos {
		t.Error("dead player moved")
	}
}

// TestHandleChat verifies sanitizing and throttling of chat lines
func TestHandleChat(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Join("a", "alice", "")

	if err := h.c.Handle("a", ChatCommand{Text: "  hi\x07 there  "}); err != nil {
		t.Fatal(err)
	}
	e, ok := h.out.last(EvtChat)
	if !ok {
		t.Fatal("no chat broadcast")
	}
	msg := e.data.(ChatMessage)
	if msg.Message != "hi there" || msg.Sender != "alice" || msg.Team != TeamRed {
		t.Errorf("chat = %+v", msg)
	}

	if err := h.c.Handle("a", ChatCommand{Text: "   "}); err != nil {
		t.Errorf("blank line: %v", err)
	}
	if n := h.out.count(EvtChat); n != 1 {
		t.Errorf("chat broadcasts = %d, want 1", n)
	}

	wantKind(t, h.c.Handle("ghost", ChatCommand{Text: "x"}), KindNotFound)

	h.c.chat = fakeChat{allow: false}
	wantKind(t, h.c.Handle("a", ChatCommand{Text: "spam"}), KindConflict)
}

// TestHandleAuth verifies renames and the identity check
func TestHandleAuth(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Join("a", "alice", "user-1")

	wantKind(t, h.c.Handle("a", AuthCommand{UserID: "user-2", Username: "mallory"}), KindValidation)
	if p := h.player(t, "a"); p.Username != "alice" {
		t.Errorf("rejected auth renamed player to %q", p.Username)
	}

	if err := h.c.Handle("a", AuthCommand{UserID: "user-1", Username: "  Alice  "}); err != nil {
		t.Fatal(err)
	}
	if p := h.player(t, "a"); p.Username != "Alice" {
		t.Errorf("username = %q", p.Username)
	}
	e, ok := h.out.last(EvtGameState)
	if !ok || e.to != "a" {
		t.Fatalf("game state reply = %+v", e)
	}
	if st := e.data.(GameStateMessage); st.State != PhaseLobby || st.Mode != ModeClassic {
		t.Errorf("game state = %+v", st)
	}

	wantKind(t, h.c.Handle("ghost", AuthCommand{}), KindNotFound)
}

type teleportCommand struct{}

func (teleportCommand) Type() string { return "teleport" }

// TestHandleRejectsUnknownCommands verifies nil, incomplete and foreign
// commands
func TestHandleRejectsUnknownCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Join("a", "alice", "")
	wantKind(t, h.c.Handle("a", nil), KindValidation)
	wantKind(t, h.c.Handle("a", HitCommand{}), KindValidation)
	wantKind(t, h.c.Handle("a", teleportCommand{}), KindValidation)
}

// TestClosedControllerRejects verifies a closed controller ignores input
func TestClosedControllerRejects(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Join("a", "alice", "")
	h.c.Close()
	h.c.Close()

	err := h.c.Handle("a", ChatCommand{Text: "hello"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
	before := len(h.out.events)
	h.c.Tick(time.Second)
	h.c.Shutdown("bye")
	if len(h.out.events) != before {
		t.Errorf("closed controller broadcast %v", h.out.names()[before:])
	}
}
