package match

import (
	"sort"
	"time"
)

// TeamState is the score and roster size of one side.
type TeamState struct {
	Score       int `json:"score"`
	PlayerCount int `json:"playerCount"`
}

// MatchState is the single source of truth of a room. It is owned by one
// Controller and only touched from the room goroutine.
type MatchState struct {
	Phase             Phase
	MatchID           string
	MatchDuration     int
	TimeRemaining     int
	CountdownTime     int
	Mode              string
	MaxPlayersPerTeam int
	MaxScore          int
	Locked            bool
	Red               TeamState
	Blue              TeamState

	players     map[string]*Player
	order       []string // join order, used for MVP tie-breaks
	projectiles map[string]*Projectile
	clock       time.Duration // total simulated time
}

func newMatchState(cfg Config, matchID string) *MatchState {
	return &MatchState{
		Phase:             PhaseLobby,
		MatchID:           matchID,
		MatchDuration:     cfg.MatchDuration,
		TimeRemaining:     cfg.MatchDuration,
		Mode:              cfg.Mode,
		MaxPlayersPerTeam: cfg.MaxPlayersPerTeam,
		MaxScore:          cfg.MaxScore,
		players:           make(map[string]*Player),
		projectiles:       make(map[string]*Projectile),
	}
}

// Player returns the player with the given id.
func (s *MatchState) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players returns all tracked players in join order.
func (s *MatchState) Players() []*Player {
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// PlayerCount is the number of tracked players, spectators included.
func (s *MatchState) PlayerCount() int { return len(s.players) }

// Projectile returns the projectile with the given id.
func (s *MatchState) Projectile(id string) (*Projectile, bool) {
	p, ok := s.projectiles[id]
	return p, ok
}

// ProjectileCount is the number of projectiles in flight.
func (s *MatchState) ProjectileCount() int { return len(s.projectiles) }

// Team returns the mutable state of a combat team, nil for spectators.
func (s *MatchState) Team(t Team) *TeamState {
	switch t {
	case TeamRed:
		return &s.Red
	case TeamBlue:
		return &s.Blue
	}
	return nil
}

// Combatants counts tracked non-spectator players.
func (s *MatchState) Combatants() int {
	n := 0
	for _, p := range s.players {
		if p.isCombatant() {
			n++
		}
	}
	return n
}

func (s *MatchState) addPlayer(p *Player) {
	s.players[p.ID] = p
	s.order = append(s.order, p.ID)
	if ts := s.Team(p.Team); ts != nil {
		ts.PlayerCount++
	}
}

func (s *MatchState) removePlayer(id string) (*Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return nil, false
	}
	if ts := s.Team(p.Team); ts != nil {
		ts.PlayerCount--
	}
	delete(s.players, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, true
}

// moveTeam reassigns p and keeps both team counts in step.
func (s *MatchState) moveTeam(p *Player, to Team) {
	if ts := s.Team(p.Team); ts != nil {
		ts.PlayerCount--
	}
	p.Team = to
	if ts := s.Team(to); ts != nil {
		ts.PlayerCount++
	}
}

func (s *MatchState) addProjectile(p *Projectile) {
	s.projectiles[p.ID] = p
}

func (s *MatchState) removeProjectile(id string) {
	delete(s.projectiles, id)
}

func (s *MatchState) removeProjectilesOwnedBy(ownerID string) int {
	n := 0
	for id, p := range s.projectiles {
		if p.OwnerID == ownerID {
			delete(s.projectiles, id)
			n++
		}
	}
	return n
}

func (s *MatchState) clearProjectiles() {
	s.projectiles = make(map[string]*Projectile)
}

// leader returns the team ahead on score, RED on a tie.
func (s *MatchState) leader() Team {
	if s.Blue.Score > s.Red.Score {
		return TeamBlue
	}
	return TeamRed
}

// Snapshot is a value copy of the match, safe to hand to other goroutines.
type Snapshot struct {
	MatchID       string       `json:"matchId"`
	State         Phase        `json:"state"`
	Mode          string       `json:"mode"`
	TimeRemaining int          `json:"timeRemaining"`
	CountdownTime int          `json:"countdownTime"`
	Locked        bool         `json:"locked"`
	RedTeam       TeamState    `json:"redTeam"`
	BlueTeam      TeamState    `json:"blueTeam"`
	Players       []Player     `json:"players"`
	Projectiles   []Projectile `json:"projectiles"`
}

// Snapshot copies the current state. Projectiles are ordered by id so
// consecutive snapshots diff cleanly.
func (s *MatchState) Snapshot() Snapshot {
	snap := Snapshot{
		MatchID:       s.MatchID,
		State:         s.Phase,
		Mode:          s.Mode,
		TimeRemaining: s.TimeRemaining,
		CountdownTime: s.CountdownTime,
		Locked:        s.Locked,
		RedTeam:       s.Red,
		BlueTeam:      s.Blue,
		Players:       make([]Player, 0, len(s.players)),
		Projectiles:   make([]Projectile, 0, len(s.projectiles)),
	}
	for _, p := range s.Players() {
		snap.Players = append(snap.Players, *p)
	}
	for _, p := range s.projectiles {
		snap.Projectiles = append(snap.Projectiles, *p)
	}
	sort.Slice(snap.Projectiles, func(i, j int) bool {
		return snap.Projectiles[i].ID < snap.Projectiles[j].ID
	})
	return snap
}

// RosterEntry is the condensed per-player line of a Summary.
type RosterEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Team     Team   `json:"team"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// Summary is the room metadata published for matchmaking listings.
type Summary struct {
	MatchID         string        `json:"matchId"`
	Mode            string        `json:"mode"`
	State           Phase         `json:"gameState"`
	Locked          bool          `json:"locked"`
	RedTeamCount    int           `json:"redTeamCount"`
	BlueTeamCount   int           `json:"blueTeamCount"`
	Spectators      int           `json:"spectators"`
	RedScore        int           `json:"redScore"`
	BlueScore       int           `json:"blueScore"`
	ReadyPlayers    int           `json:"readyPlayers"`
	AlivePlayers    int           `json:"alivePlayers"`
	TotalPlayers    int           `json:"totalPlayers"`
	ProjectileCount int           `json:"projectileCount"`
	TimeRemaining   int           `json:"timeRemaining"`
	Players         []RosterEntry `json:"players"`
}

// Summary condenses the state for the room directory.
func (s *MatchState) Summary() Summary {
	sum := Summary{
		MatchID:         s.MatchID,
		Mode:            s.Mode,
		State:           s.Phase,
		Locked:          s.Locked,
		RedTeamCount:    s.Red.PlayerCount,
		BlueTeamCount:   s.Blue.PlayerCount,
		RedScore:        s.Red.Score,
		BlueScore:       s.Blue.Score,
		TotalPlayers:    len(s.players),
		ProjectileCount: len(s.projectiles),
		TimeRemaining:   s.TimeRemaining,
		Players:         make([]RosterEntry, 0, len(s.players)),
	}
	for _, p := range s.Players() {
		if !p.isCombatant() {
			sum.Spectators++
		} else {
			if p.IsReady {
				sum.ReadyPlayers++
			}
			if p.IsAlive {
				sum.AlivePlayers++
			}
		}
		sum.Players = append(sum.Players, RosterEntry{
			ID:       p.ID,
			Username: p.Username,
			Team:     p.Team,
			Kills:    p.Stats.Kills,
			Deaths:   p.Stats.Deaths,
		})
	}
	return sum
}
