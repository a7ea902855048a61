package match

import (
	"fmt"
	"time"
)

// FireRequest is a client's request to spawn a projectile.
type FireRequest struct {
	Position  Vector3
	Direction Vector3
	Color     string // optional override of the team color
}

// HitOutcome reports a validated hit.
type HitOutcome struct {
	Shooter      *Player
	Target       *Player
	ProjectileID string
	Damage       int
	Killed       bool
}

// CombatResolver creates projectiles and validates client-reported hits.
// Client reports are never trusted until every check has passed.
type CombatResolver struct {
	state   *MatchState
	cfg     Config
	counter uint64
	now     func() time.Time
}

func newCombatResolver(state *MatchState, cfg Config, now func() time.Time) *CombatResolver {
	return &CombatResolver{state: state, cfg: cfg, now: now}
}

// FireProjectile spawns a projectile for an alive shooter during play.
func (c *CombatResolver) FireProjectile(shooterID string, req FireRequest) (*Projectile, error) {
	shooter, ok := c.state.Player(shooterID)
	if !ok {
		return nil, notFoundf("player %s not found", shooterID)
	}
	if c.state.Phase != PhasePlaying {
		return nil, conflictf("cannot shoot outside of active gameplay")
	}
	if !shooter.isCombatant() {
		return nil, conflictf("spectators cannot shoot")
	}
	if !shooter.IsAlive {
		return nil, conflictf("dead players cannot shoot")
	}
	if !req.Position.finite() || !req.Direction.finite() {
		return nil, validationf("projectile position and direction must be finite")
	}
	if req.Direction.isZero() {
		return nil, validationf("projectile direction must be non-zero")
	}

	shooter.Stats.Shots++
	shooter.Stats.updateAccuracy()

	color := req.Color
	if color == "" {
		color = teamColor(shooter.Team)
	}
	c.counter++
	p := &Projectile{
		ID:        fmt.Sprintf("%s_%d", shooterID, c.counter),
		OwnerID:   shooterID,
		OwnerTeam: shooter.Team,
		Position:  req.Position,
		Direction: req.Direction,
		Damage:    c.cfg.ProjectileDamage,
		Color:     color,
		CreatedAt: c.now(),
		bornAt:    c.state.clock,
	}
	c.state.addProjectile(p)
	return p, nil
}

// ReportHit validates and applies a hit. The checks run in a fixed order and
// any failure leaves every entity untouched.
func (c *CombatResolver) ReportHit(shooterID, projectileID, targetID string) (HitOutcome, error) {
	if c.state.Phase != PhasePlaying {
		return HitOutcome{}, conflictf("hits only count during active gameplay")
	}
	projectile, ok := c.state.Projectile(projectileID)
	if !ok {
		return HitOutcome{}, notFoundf("projectile %s not found", projectileID)
	}
	shooter, ok := c.state.Player(shooterID)
	if !ok {
		return HitOutcome{}, notFoundf("shooter %s not found", shooterID)
	}
	target, ok := c.state.Player(targetID)
	if !ok {
		return HitOutcome{}, notFoundf("target %s not found", targetID)
	}
	if !target.isCombatant() {
		return HitOutcome{}, conflictf("spectators cannot be hit")
	}
	if !target.IsAlive {
		return HitOutcome{}, conflictf("target is already dead")
	}
	if projectile.OwnerID != shooterID {
		return HitOutcome{}, conflictf("only the shooter may report hits")
	}
	if shooter.Team == target.Team {
		return HitOutcome{}, conflictf("no friendly fire")
	}

	c.state.removeProjectile(projectileID)
	shooter.Stats.Hits++
	shooter.Stats.updateAccuracy()

	out := HitOutcome{
		Shooter:      shooter,
		Target:       target,
		ProjectileID: projectileID,
		Damage:       projectile.Damage,
	}
	if target.takeDamage(projectile.Damage) {
		target.die(c.cfg.RespawnSeconds)
		target.Stats.Deaths++
		shooter.Stats.Kills++
		if ts := c.state.Team(shooter.Team); ts != nil {
			ts.Score += PointsPerKill
		}
		out.Killed = true
	}
	return out, nil
}
