package match

import "time"

// EndCause is why a match ended.
type EndCause uint8

const (
	CauseTimeExpired EndCause = iota
	CauseScoreLimit
	CauseTeamEmpty
	CauseShutdown
)

func (c EndCause) String() string {
	switch c {
	case CauseScoreLimit:
		return "score_limit"
	case CauseTeamEmpty:
		return "team_empty"
	case CauseShutdown:
		return "shutdown"
	default:
		return "time_expired"
	}
}

// PlayerResult is one player's line in a MatchResult.
type PlayerResult struct {
	PlayerID string  `json:"playerId"`
	UserID   string  `json:"userId,omitempty"`
	Username string  `json:"username"`
	Team     Team    `json:"team"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Assists  int     `json:"assists"`
	Accuracy float64 `json:"accuracy"`
}

// MatchResult is the final scoreboard of one match.
type MatchResult struct {
	MatchID     string         `json:"matchId"`
	Mode        string         `json:"mode"`
	WinningTeam Team           `json:"winningTeam"`
	Cause       string         `json:"cause"`
	Duration    int            `json:"duration"` // seconds played
	RedScore    int            `json:"redScore"`
	BlueScore   int            `json:"blueScore"`
	PlayerStats []PlayerResult `json:"playerStats"`
	MVPID       string         `json:"mvpId"`
	EndedAt     time.Time      `json:"endedAt"`
}

// Stats returns the line of the given player.
func (r MatchResult) Stats(playerID string) (PlayerResult, bool) {
	for _, ps := range r.PlayerStats {
		if ps.PlayerID == playerID {
			return ps, true
		}
	}
	return PlayerResult{}, false
}

// MatchResultAggregator builds the MatchResult when a match ends.
type MatchResultAggregator struct {
	state *MatchState
}

// Aggregate snapshots every tracked player. winner may be empty, in which
// case it is decided from the final scores.
func (a MatchResultAggregator) Aggregate(winner Team, cause EndCause, endedAt time.Time) MatchResult {
	s := a.state
	if winner != TeamRed && winner != TeamBlue {
		winner = decideWinner(s)
	}

	result := MatchResult{
		MatchID:     s.MatchID,
		Mode:        s.Mode,
		WinningTeam: winner,
		Cause:       cause.String(),
		Duration:    s.MatchDuration - s.TimeRemaining,
		RedScore:    s.Red.Score,
		BlueScore:   s.Blue.Score,
		EndedAt:     endedAt,
	}

	maxKills := -1
	for _, p := range s.Players() {
		result.PlayerStats = append(result.PlayerStats, PlayerResult{
			PlayerID: p.ID,
			UserID:   p.UserID,
			Username: p.Username,
			Team:     p.Team,
			Kills:    p.Stats.Kills,
			Deaths:   p.Stats.Deaths,
			Assists:  p.Stats.Assists,
			Accuracy: accuracy(p.Stats.Hits, p.Stats.Shots),
		})
		// strict > keeps the earliest joiner on ties
		if p.Stats.Kills > maxKills {
			maxKills = p.Stats.Kills
			result.MVPID = p.ID
		}
	}
	return result
}

// decideWinner picks the higher score. On a tie the team with fewer players
// wins, RED when the counts are equal too.
func decideWinner(s *MatchState) Team {
	switch {
	case s.Red.Score > s.Blue.Score:
		return TeamRed
	case s.Blue.Score > s.Red.Score:
		return TeamBlue
	case s.Red.PlayerCount <= s.Blue.PlayerCount:
		return TeamRed
	default:
		return TeamBlue
	}
}
