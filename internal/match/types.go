package match

import "math"

// Team identifies which side a player fights for.
type Team string

const (
	TeamRed       Team = "red"
	TeamBlue      Team = "blue"
	TeamSpectator Team = "spectator"
)

// Valid reports whether t is one of the known teams.
func (t Team) Valid() bool {
	switch t {
	case TeamRed, TeamBlue, TeamSpectator:
		return true
	}
	return false
}

// Opponent returns the opposing combat team. Spectators have no opponent.
func (t Team) Opponent() Team {
	switch t {
	case TeamRed:
		return TeamBlue
	case TeamBlue:
		return TeamRed
	}
	return TeamSpectator
}

// Phase is the match lifecycle state.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseLoading   Phase = "loading"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseEnded     Phase = "ended"
)

// Animation is the client-visible animation state of a player.
type Animation string

const (
	AnimIdle     Animation = "idle"
	AnimWalking  Animation = "walking"
	AnimRunning  Animation = "running"
	AnimJumping  Animation = "jumping"
	AnimShooting Animation = "shooting"
	AnimDead     Animation = "dead"
)

// Valid reports whether a is a known animation.
func (a Animation) Valid() bool {
	switch a {
	case AnimIdle, AnimWalking, AnimRunning, AnimJumping, AnimShooting, AnimDead:
		return true
	}
	return false
}

// Vector3 is a point or direction in world space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vector3) isZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Quaternion is a player orientation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityRotation is the default orientation of a new player.
var IdentityRotation = Quaternion{W: 1}

func (q Quaternion) finite() bool {
	return isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z) && isFinite(q.W)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
