package match

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxUsernameLength = 32

// LeaveOutcome describes what a leave did to the roster.
type LeaveOutcome struct {
	Player   *Player
	Deferred bool // slot kept for reconnection
}

// RosterManager handles joins, leaves, team selection and readiness. It
// mutates the MatchState handed to it by the Controller.
type RosterManager struct {
	state     *MatchState
	cfg       Config
	rng       *rand.Rand
	reconnect *ReconnectionManager
}

func newRosterManager(state *MatchState, cfg Config, rng *rand.Rand, reconnect *ReconnectionManager) *RosterManager {
	return &RosterManager{state: state, cfg: cfg, rng: rng, reconnect: reconnect}
}

// Join adds a player. In the lobby the player is auto-balanced onto a team,
// otherwise they watch as a spectator.
func (r *RosterManager) Join(clientID, username string) (*Player, error) {
	if clientID == "" {
		return nil, validationf("client id is required")
	}
	if _, exists := r.state.Player(clientID); exists {
		return nil, conflictf("player %s already joined", clientID)
	}
	if r.state.PlayerCount() >= r.cfg.MaxClients() {
		return nil, conflictf("room is full")
	}

	p := newPlayer(clientID, r.cleanUsername(username))
	p.reconnectToken = uuid.NewString()

	if r.state.Phase == PhaseLobby && !r.state.Locked {
		p.Team = r.autoAssign()
	}
	r.state.addPlayer(p)
	return p, nil
}

func (r *RosterManager) cleanUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Player%d", r.rng.Intn(1000))
	}
	if utf8.RuneCountInString(name) > maxUsernameLength {
		name = string([]rune(name)[:maxUsernameLength])
	}
	return name
}

// autoAssign picks the smaller team that still has room, RED on ties.
func (r *RosterManager) autoAssign() Team {
	red, blue := r.state.Red.PlayerCount, r.state.Blue.PlayerCount
	limit := r.cfg.MaxPlayersPerTeam
	switch {
	case red <= blue && red < limit:
		return TeamRed
	case blue < limit:
		return TeamBlue
	}
	return TeamSpectator
}

// SelectTeam moves a player to another team while the room is in the lobby.
func (r *RosterManager) SelectTeam(clientID string, team Team) error {
	if !team.Valid() {
		return validationf("unknown team %q", team)
	}
	if r.state.Phase != PhaseLobby {
		return validationf("cannot change team after the game has started")
	}
	p, ok := r.state.Player(clientID)
	if !ok {
		return notFoundf("player %s not found", clientID)
	}
	if p.Team == team {
		return nil
	}
	if ts := r.state.Team(team); ts != nil && ts.PlayerCount >= r.cfg.MaxPlayersPerTeam {
		return conflictf("%s team is full", team)
	}
	r.state.moveTeam(p, team)
	return nil
}

// Leave drops a player. An unconsented leave during play keeps the slot and
// hands the player to the ReconnectionManager instead.
func (r *RosterManager) Leave(clientID string, consented bool) (LeaveOutcome, error) {
	p, ok := r.state.Player(clientID)
	if !ok {
		return LeaveOutcome{}, notFoundf("player %s not found", clientID)
	}
	if !consented && r.state.Phase == PhasePlaying {
		r.reconnect.Begin(p)
		return LeaveOutcome{Player: p, Deferred: true}, nil
	}
	r.reconnect.Forget(clientID)
	r.remove(clientID)
	return LeaveOutcome{Player: p}, nil
}

func (r *RosterManager) remove(clientID string) (*Player, bool) {
	p, ok := r.state.removePlayer(clientID)
	if !ok {
		return nil, false
	}
	r.state.removeProjectilesOwnedBy(clientID)
	return p, true
}

// SetReady records loading progress. It only has an effect while loading.
func (r *RosterManager) SetReady(clientID string, ready bool, progress float64) error {
	if r.state.Phase != PhaseLoading {
		return validationf("ready status is only accepted while loading")
	}
	if !isFinite(progress) {
		return validationf("loading progress must be a number")
	}
	p, ok := r.state.Player(clientID)
	if !ok {
		return notFoundf("player %s not found", clientID)
	}
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	p.IsReady = ready
	p.LoadingProgress = progress
	return nil
}

// allReady reports whether every combatant is ready and there are at least
// two of them.
func (r *RosterManager) allReady() bool {
	total := 0
	for _, p := range r.state.players {
		if !p.isCombatant() {
			continue
		}
		total++
		if !p.IsReady {
			return false
		}
	}
	return total >= 2
}

// bothTeamsManned reports whether each team has at least one player.
func (r *RosterManager) bothTeamsManned() bool {
	return r.state.Red.PlayerCount > 0 && r.state.Blue.PlayerCount > 0
}

// emptiedTeam returns the combat team with no players left, if any.
func (r *RosterManager) emptiedTeam() (Team, bool) {
	switch {
	case r.state.Red.PlayerCount == 0:
		return TeamRed, true
	case r.state.Blue.PlayerCount == 0:
		return TeamBlue, true
	}
	return TeamSpectator, false
}
