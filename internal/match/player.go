package match

// PlayerStats are the per-match combat counters of a player.
type PlayerStats struct {
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Assists  int     `json:"assists"`
	Shots    int     `json:"shots"`
	Hits     int     `json:"hits"`
	Accuracy float64 `json:"accuracy"`
}

// updateAccuracy keeps Accuracy = hits/shots*100, or 0 with no shots.
func (s *PlayerStats) updateAccuracy() {
	s.Accuracy = accuracy(s.Hits, s.Shots)
}

func (s *PlayerStats) reset() {
	*s = PlayerStats{}
}

func accuracy(hits, shots int) float64 {
	if shots <= 0 {
		return 0
	}
	a := float64(hits) / float64(shots) * 100
	if a > 100 {
		return 100
	}
	return a
}

// Player is a connected (or reconnecting) participant of a room.
type Player struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	UserID          string      `json:"userId,omitempty"`
	Team            Team        `json:"team"`
	Position        Vector3     `json:"position"`
	Rotation        Quaternion  `json:"rotation"`
	Animation       Animation   `json:"animation"`
	Health          int         `json:"health"`
	IsAlive         bool        `json:"isAlive"`
	IsReady         bool        `json:"isReady"`
	LoadingProgress float64     `json:"loadingProgress"`
	Stats           PlayerStats `json:"stats"`
	RespawnTime     float64     `json:"respawnTime"`
	Connected       bool        `json:"connected"`

	reconnectToken string
}

// lobbySpawn is where players wait before the match spawns them.
var lobbySpawn = Vector3{X: 0, Y: 10, Z: 0}

func newPlayer(id, username string) *Player {
	return &Player{
		ID:        id,
		Username:  username,
		Team:      TeamSpectator,
		Position:  lobbySpawn,
		Rotation:  IdentityRotation,
		Animation: AnimIdle,
		Health:    MaxHealth,
		IsAlive:   true,
		Connected: true,
	}
}

func (p *Player) isCombatant() bool {
	return p.Team == TeamRed || p.Team == TeamBlue
}

// takeDamage subtracts damage with a floor at zero and reports whether the
// player is now dead.
func (p *Player) takeDamage(damage int) bool {
	p.Health -= damage
	if p.Health < 0 {
		p.Health = 0
	}
	return p.Health <= 0
}

func (p *Player) die(respawnSeconds float64) {
	p.IsAlive = false
	p.Health = 0
	p.Animation = AnimDead
	p.RespawnTime = respawnSeconds
}

func (p *Player) respawn(at Vector3) {
	p.Health = MaxHealth
	p.IsAlive = true
	p.Animation = AnimIdle
	p.RespawnTime = 0
	p.Position = at
}

// resetForLobby clears match progress but keeps identity and team.
func (p *Player) resetForLobby() {
	p.Health = MaxHealth
	p.IsAlive = true
	p.Animation = AnimIdle
	p.IsReady = false
	p.LoadingProgress = 0
	p.RespawnTime = 0
	p.Stats.reset()
}
