package match

import (
	"math/rand"
	"time"
)

// Spawn regions, in world units.
const (
	redSpawnMinX  = -20.0
	blueSpawnMinX = 15.0
	spawnWidthX   = 5.0
	spawnMinZ     = -20.0
	spawnDepthZ   = 40.0
	spawnY        = 1.0
)

// TickReport lists what a simulation step did that the Controller must act on.
type TickReport struct {
	Respawned     []*Player
	Expired       int
	Countdown     []int // countdown values reached this step, > 0
	CountdownDone bool
	ClockSeconds  int // match clock seconds elapsed this step
	ClockExpired  bool
}

// SimulationLoop advances timers at the fixed room cadence. The match clock
// and countdown only move once per full second of accumulated step time.
type SimulationLoop struct {
	state     *MatchState
	cfg       Config
	rng       *rand.Rand
	secondAcc time.Duration
}

func newSimulationLoop(state *MatchState, cfg Config, rng *rand.Rand) *SimulationLoop {
	return &SimulationLoop{state: state, cfg: cfg, rng: rng}
}

// Step runs one tick of dt: respawns, projectile expiry, then the countdown
// or the match clock.
func (s *SimulationLoop) Step(dt time.Duration) TickReport {
	var report TickReport
	if dt < 0 {
		dt = 0
	}
	s.state.clock += dt

	if s.state.Phase == PhasePlaying {
		secs := dt.Seconds()
		for _, p := range s.state.Players() {
			if p.IsAlive || p.RespawnTime <= 0 || !p.isCombatant() {
				continue
			}
			p.RespawnTime -= secs
			if p.RespawnTime <= 0 {
				p.respawn(s.spawnPoint(p.Team))
				report.Respawned = append(report.Respawned, p)
			}
		}
	}

	for id, p := range s.state.projectiles {
		if p.expired(s.state.clock, s.cfg.ProjectileLifetime) {
			delete(s.state.projectiles, id)
			report.Expired++
		}
	}

	if s.state.Phase != PhaseCountdown && s.state.Phase != PhasePlaying {
		return report
	}
	s.secondAcc += dt
	for s.secondAcc >= time.Second {
		s.secondAcc -= time.Second
		switch s.state.Phase {
		case PhaseCountdown:
			s.state.CountdownTime--
			if s.state.CountdownTime <= 0 {
				s.state.CountdownTime = 0
				report.CountdownDone = true
				return report
			}
			report.Countdown = append(report.Countdown, s.state.CountdownTime)
		case PhasePlaying:
			s.state.TimeRemaining--
			report.ClockSeconds++
			if s.state.TimeRemaining <= 0 {
				s.state.TimeRemaining = 0
				report.ClockExpired = true
				return report
			}
		}
	}
	return report
}

// restartClock drops any partial second so a newly entered phase gets a
// full second before its first decrement.
func (s *SimulationLoop) restartClock() {
	s.secondAcc = 0
}

// spawnPoint picks a random point inside the team's spawn region.
func (s *SimulationLoop) spawnPoint(t Team) Vector3 {
	minX := redSpawnMinX
	switch t {
	case TeamBlue:
		minX = blueSpawnMinX
	case TeamSpectator:
		return lobbySpawn
	}
	return Vector3{
		X: minX + s.rng.Float64()*spawnWidthX,
		Y: spawnY,
		Z: spawnMinZ + s.rng.Float64()*spawnDepthZ,
	}
}
