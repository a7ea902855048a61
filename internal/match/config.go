package match

import "time"

// Gameplay constants that are not tunable per room.
const (
	MaxHealth      = 100
	PointsPerKill  = 1
	MaxChatLength  = 100
	SpectatorSlots = 10 // extra seats beyond two full teams
	ModeClassic    = "classic"

	RedProjectileColor  = "#ff4d4d"
	BlueProjectileColor = "#4d4dff"
)

// Config holds the tunables of a single match room.
type Config struct {
	Mode               string
	MatchDuration      int     // seconds
	MaxScore           int     // kills needed to win
	MaxPlayersPerTeam  int
	CountdownSeconds   int
	RespawnSeconds     float64
	ProjectileDamage   int
	ProjectileLifetime time.Duration
	ReconnectGrace     time.Duration
	ResetDelay         time.Duration // ENDED -> LOBBY
	Seed               int64         // 0 picks a time-based seed
}

// DefaultConfig returns the classic 5v5 rules.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeClassic,
		MatchDuration:      300,
		MaxScore:           50,
		MaxPlayersPerTeam:  5,
		CountdownSeconds:   5,
		RespawnSeconds:     5,
		ProjectileDamage:   20,
		ProjectileLifetime: 10 * time.Second,
		ReconnectGrace:     30 * time.Second,
		ResetDelay:         15 * time.Second,
	}
}

// MaxClients is the total seat count of a room, spectators included.
func (c Config) MaxClients() int {
	return 2*c.MaxPlayersPerTeam + SpectatorSlots
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.MatchDuration <= 0 {
		c.MatchDuration = d.MatchDuration
	}
	if c.MaxScore <= 0 {
		c.MaxScore = d.MaxScore
	}
	if c.MaxPlayersPerTeam <= 0 {
		c.MaxPlayersPerTeam = d.MaxPlayersPerTeam
	}
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = d.CountdownSeconds
	}
	if c.RespawnSeconds <= 0 {
		c.RespawnSeconds = d.RespawnSeconds
	}
	if c.ProjectileDamage <= 0 {
		c.ProjectileDamage = d.ProjectileDamage
	}
	if c.ProjectileLifetime <= 0 {
		c.ProjectileLifetime = d.ProjectileLifetime
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = d.ReconnectGrace
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = d.ResetDelay
	}
	return c
}
