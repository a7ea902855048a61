package match

import (
	"log"
	"math/rand"
	"strings"
	"time"

	"tdm-server/internal/chat"

	"github.com/google/uuid"
)

// Broadcaster delivers outbound events to the clients of one room.
type Broadcaster interface {
	Broadcast(event string, data any)
	Send(playerID, event string, data any)
}

// ResultSink receives finished matches. Offer must not block the caller.
type ResultSink interface {
	Offer(result MatchResult)
}

// ChatLimiter throttles chat lines per player.
type ChatLimiter interface {
	Allow(key string) bool
}

// Options configures a Controller. Only Config is required; Scheduler must
// deliver callbacks on the goroutine that drives the Controller.
type Options struct {
	RoomID      string
	Config      Config
	Scheduler   Scheduler
	Broadcaster Broadcaster
	Results     ResultSink
	Events      *EventLog
	Chat        ChatLimiter
	Now         func() time.Time
	NewMatchID  func() string
}

// Controller is the single writer of a room's MatchState. It routes client
// commands to the roster and combat components and applies every lifecycle
// transition. It is not safe for concurrent use.
type Controller struct {
	roomID string
	cfg    Config
	state  *MatchState

	roster    *RosterManager
	combat    *CombatResolver
	sim       *SimulationLoop
	reconnect *ReconnectionManager
	results   MatchResultAggregator

	out        Broadcaster
	sched      Scheduler
	sink       ResultSink
	events     *EventLog
	chat       ChatLimiter
	now        func() time.Time
	newMatchID func() string

	resetTimer Timer
	resetSeq   uint64
	lastResult *MatchResult
	closed     bool
}

// NewController creates a controller with a fresh match in the lobby.
func NewController(opts Options) *Controller {
	cfg := opts.Config.withDefaults()

	c := &Controller{
		roomID:     opts.RoomID,
		cfg:        cfg,
		out:        opts.Broadcaster,
		sched:      opts.Scheduler,
		sink:       opts.Results,
		events:     opts.Events,
		chat:       opts.Chat,
		now:        opts.Now,
		newMatchID: opts.NewMatchID,
	}
	if c.out == nil {
		c.out = nopBroadcaster{}
	}
	if c.sched == nil {
		c.sched = wallScheduler{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newMatchID == nil {
		c.newMatchID = uuid.NewString
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	c.state = newMatchState(cfg, c.newMatchID())
	c.reconnect = newReconnectionManager(c.state, cfg.ReconnectGrace, c.sched)
	c.reconnect.onExpire = c.expireGrace
	c.roster = newRosterManager(c.state, cfg, rng, c.reconnect)
	c.combat = newCombatResolver(c.state, cfg, c.now)
	c.sim = newSimulationLoop(c.state, cfg, rng)
	c.results = MatchResultAggregator{state: c.state}
	return c
}

// State exposes the match for read-only inspection on the room goroutine.
func (c *Controller) State() *MatchState { return c.state }

// Config returns the effective room configuration.
func (c *Controller) Config() Config { return c.cfg }

// Snapshot copies the full state for replication.
func (c *Controller) Snapshot() Snapshot { return c.state.Snapshot() }

// Summary condenses the state for room listings.
func (c *Controller) Summary() Summary { return c.state.Summary() }

// LastResult returns the result of the most recently ended match.
func (c *Controller) LastResult() (MatchResult, bool) {
	if c.lastResult == nil {
		return MatchResult{}, false
	}
	return *c.lastResult, true
}

// PendingReconnect reports whether playerID is inside its grace window.
func (c *Controller) PendingReconnect(playerID string) bool {
	return c.reconnect.Pending(playerID)
}

// Join adds a client to the room. The welcome is sent to the client before
// any lifecycle event the join triggers.
func (c *Controller) Join(clientID, username, userID string) (Welcome, error) {
	p, err := c.roster.Join(clientID, username)
	if err != nil {
		return Welcome{}, err
	}
	p.UserID = userID

	log.Printf("👤 [%s] %s joined as %s (%d players)", c.roomID, p.Username, p.Team, c.state.PlayerCount())
	c.emit(EventTypePlayerJoin, p.ID, JoinPayload{Username: p.Username, Team: p.Team})

	w := c.welcome(p)
	c.out.Send(p.ID, EvtWelcome, w)
	c.checkLobbyReady()
	return w, nil
}

// Leave handles a client leaving. Unconsented leaves during play enter the
// reconnection grace window instead of removing the player.
func (c *Controller) Leave(clientID string, consented bool) error {
	out, err := c.roster.Leave(clientID, consented)
	if err != nil {
		return err
	}
	p := out.Player
	if out.Deferred {
		log.Printf("📴 [%s] %s disconnected, holding slot for %s", c.roomID, p.Username, c.cfg.ReconnectGrace)
		c.emit(EventTypePlayerDisconnect, p.ID, nil)
		c.out.Broadcast(EvtDisconnected, PlayerPresenceMessage{PlayerID: p.ID, Username: p.Username})
		return nil
	}
	c.afterRemoval(p, consented)
	return nil
}

// Reconnect resumes a player inside its grace window.
func (c *Controller) Reconnect(clientID, token string) (Welcome, error) {
	p, err := c.reconnect.Resume(clientID, token)
	if err != nil {
		return Welcome{}, err
	}
	log.Printf("🔌 [%s] %s reconnected", c.roomID, p.Username)
	c.emit(EventTypePlayerReconnect, p.ID, nil)

	w := c.welcome(p)
	c.out.Send(p.ID, EvtWelcome, w)
	c.out.Broadcast(EvtReconnected, PlayerPresenceMessage{PlayerID: p.ID, Username: p.Username})
	return w, nil
}

func (c *Controller) expireGrace(playerID string) {
	p, ok := c.roster.remove(playerID)
	if !ok {
		return
	}
	log.Printf("⌛ [%s] %s did not reconnect in time", c.roomID, p.Username)
	c.afterRemoval(p, false)
}

// afterRemoval runs the lifecycle checks that follow a player removal.
func (c *Controller) afterRemoval(p *Player, consented bool) {
	log.Printf("👋 [%s] %s left team %s", c.roomID, p.Username, p.Team)
	c.emit(EventTypePlayerLeave, p.ID, LeavePayload{Team: p.Team, Consented: consented})

	switch c.state.Phase {
	case PhasePlaying:
		if team, empty := c.roster.emptiedTeam(); empty {
			log.Printf("🏳️ [%s] %s team has no players, %s wins by default", c.roomID, team, team.Opponent())
			c.endMatch(team.Opponent(), CauseTeamEmpty)
		}
	case PhaseLoading, PhaseCountdown:
		if !c.roster.bothTeamsManned() {
			c.abortToLobby()
			return
		}
		c.checkAllReady()
	}
}

// Handle applies one client command. A returned error means the command was
// rejected and nothing changed.
func (c *Controller) Handle(clientID string, cmd Command) error {
	if c.closed {
		return conflictf("room is closed")
	}
	switch m := cmd.(type) {
	case AuthCommand:
		return c.handleAuth(clientID, m)
	case ReadyCommand:
		if err := c.roster.SetReady(clientID, m.Ready, m.LoadingProgress); err != nil {
			return err
		}
		c.checkAllReady()
		return nil
	case SelectTeamCommand:
		if err := c.roster.SelectTeam(clientID, m.Team); err != nil {
			return err
		}
		c.checkLobbyReady()
		return nil
	case MoveCommand:
		return c.handleMove(clientID, m)
	case FireCommand:
		return c.handleFire(clientID, m)
	case HitCommand:
		return c.handleHit(clientID, m)
	case ChatCommand:
		return c.handleChat(clientID, m)
	case LeaveCommand:
		return c.Leave(clientID, true)
	case nil:
		return validationf("empty message")
	default:
		return validationf("unsupported message %q", cmd.Type())
	}
}

// handleAuth renames the player. A user id is only accepted when it matches
// the identity the connection was authenticated with.
func (c *Controller) handleAuth(clientID string, m AuthCommand) error {
	p, ok := c.state.Player(clientID)
	if !ok {
		return notFoundf("player %s not found", clientID)
	}
	if m.UserID != "" && p.UserID != "" && m.UserID != p.UserID {
		return validationf("userId does not match the authenticated session")
	}
	if name := strings.TrimSpace(m.Username); name != "" {
		p.Username = c.roster.cleanUsername(name)
	}

	c.out.Send(p.ID, EvtGameState, GameStateMessage{
		State:         c.state.Phase,
		TimeRemaining: c.state.TimeRemaining,
		RedScore:      c.state.Red.Score,
		BlueScore:     c.state.Blue.Score,
		Mode:          c.state.Mode,
	})
	return nil
}

// handleMove trusts the client's movement but ignores unknown or dead senders.
func (c *Controller) handleMove(clientID string, m MoveCommand) error {
	p, ok := c.state.Player(clientID)
	if !ok || !p.IsAlive {
		return nil
	}
	if !m.Position.finite() || !m.Rotation.finite() {
		return validationf("position and rotation must be finite")
	}
	if m.Animation == "" {
		m.Animation = p.Animation
	}
	if !m.Animation.Valid() {
		return validationf("unknown animation %q", m.Animation)
	}
	p.Position = m.Position
	p.Rotation = m.Rotation
	p.Animation = m.Animation
	return nil
}

func (c *Controller) handleFire(clientID string, m FireCommand) error {
	proj, err := c.combat.FireProjectile(clientID, FireRequest{
		Position:  m.Position,
		Direction: m.Direction,
		Color:     m.Color,
	})
	if err != nil {
		return err
	}
	c.emit(EventTypeFire, clientID, FirePayload{ProjectileID: proj.ID, Team: proj.OwnerTeam})
	return nil
}

func (c *Controller) handleHit(clientID string, m HitCommand) error {
	if m.ProjectileID == "" || m.TargetID == "" {
		return validationf("projectileId and targetId are required")
	}
	hit, err := c.combat.ReportHit(clientID, m.ProjectileID, m.TargetID)
	if err != nil {
		return err
	}
	c.emit(EventTypeHit, clientID, HitPayload{
		ProjectileID: hit.ProjectileID,
		TargetID:     hit.Target.ID,
		Damage:       hit.Damage,
		TargetHealth: hit.Target.Health,
	})
	if !hit.Killed {
		return nil
	}

	c.out.Broadcast(EvtKillFeed, KillFeedMessage{
		Killer:     hit.Shooter.Username,
		KillerTeam: hit.Shooter.Team,
		Victim:     hit.Target.Username,
		VictimTeam: hit.Target.Team,
	})
	log.Printf("💀 [%s] %s killed %s (red %d - %d blue)",
		c.roomID, hit.Shooter.Username, hit.Target.Username, c.state.Red.Score, c.state.Blue.Score)
	c.emit(EventTypeKill, clientID, KillPayload{
		VictimID:  hit.Target.ID,
		RedScore:  c.state.Red.Score,
		BlueScore: c.state.Blue.Score,
	})
	c.checkScoreLimit()
	return nil
}

func (c *Controller) handleChat(clientID string, m ChatCommand) error {
	p, ok := c.state.Player(clientID)
	if !ok {
		return notFoundf("player %s not found", clientID)
	}
	text := chat.Sanitize(m.Text, MaxChatLength)
	if text == "" {
		return nil
	}
	if c.chat != nil && !c.chat.Allow(clientID) {
		return conflictf("you are sending messages too fast")
	}
	c.out.Broadcast(EvtChat, ChatMessage{
		Sender:    p.Username,
		Team:      p.Team,
		Message:   text,
		Timestamp: c.now().UnixMilli(),
	})
	return nil
}

// Tick advances the simulation by dt and applies any transitions it caused.
func (c *Controller) Tick(dt time.Duration) {
	if c.closed {
		return
	}
	report := c.sim.Step(dt)
	for _, p := range report.Respawned {
		c.emit(EventTypeRespawn, p.ID, RespawnPayload{Position: p.Position})
	}
	for _, t := range report.Countdown {
		c.out.Broadcast(EvtCountdown, CountdownMessage{Time: t})
	}
	if report.CountdownDone {
		c.startMatch()
	}
	if report.ClockExpired {
		log.Printf("⏰ [%s] match time expired", c.roomID)
		c.endMatch("", CauseTimeExpired)
	}
}

// Shutdown warns every client and settles a running match in favour of the
// current score leader.
func (c *Controller) Shutdown(message string) {
	if c.closed {
		return
	}
	c.out.Broadcast(EvtShutdown, ShutdownMessage{Message: message})
	if c.state.Phase == PhasePlaying {
		c.endMatch(c.state.leader(), CauseShutdown)
	}
}

// Close stops every pending timer. The controller rejects commands afterwards.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.reconnect.CancelAll()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

func (c *Controller) welcome(p *Player) Welcome {
	return Welcome{
		PlayerID:       p.ID,
		ReconnectToken: p.reconnectToken,
		MatchID:        c.state.MatchID,
		State:          c.state.Phase,
		Team:           p.Team,
		RedScore:       c.state.Red.Score,
		BlueScore:      c.state.Blue.Score,
		TimeRemaining:  c.state.TimeRemaining,
		Mode:           c.state.Mode,
	}
}

func (c *Controller) emit(t EventType, playerID string, payload any) {
	if c.events == nil {
		return
	}
	c.events.Emit(NewEvent(t, c.roomID, c.state.MatchID, playerID, payload))
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any)    {}
func (nopBroadcaster) Send(string, string, any) {}

// wallScheduler runs callbacks on timer goroutines. It is only suitable for
// callers that serialize access to the Controller themselves.
type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
