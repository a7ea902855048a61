package match

import "log"

// Lifecycle transitions. Each one checks the current phase first, so a
// trigger arriving in the wrong phase is a no-op.

func (c *Controller) setPhase(to Phase) {
	from := c.state.Phase
	c.state.Phase = to
	log.Printf("🎮 [%s] %s -> %s (match %s)", c.roomID, from, to, c.state.MatchID)
	c.emit(EventTypePhase, "", PhasePayload{From: from, To: to})
}

// checkLobbyReady moves LOBBY -> LOADING once both teams have a player.
func (c *Controller) checkLobbyReady() {
	if c.state.Phase != PhaseLobby || !c.roster.bothTeamsManned() {
		return
	}
	c.setPhase(PhaseLoading)
	c.state.Locked = true
	for _, p := range c.state.players {
		p.IsReady = false
		p.LoadingProgress = 0
	}
	c.out.Broadcast(EvtLoading, nil)
}

// checkAllReady moves LOADING -> COUNTDOWN once every combatant is ready.
func (c *Controller) checkAllReady() {
	if c.state.Phase != PhaseLoading || !c.roster.allReady() {
		return
	}
	c.setPhase(PhaseCountdown)
	c.state.CountdownTime = c.cfg.CountdownSeconds
	c.sim.restartClock()
	c.out.Broadcast(EvtCountdown, CountdownMessage{Time: c.state.CountdownTime})
}

// startMatch moves COUNTDOWN -> PLAYING and spawns every combatant.
func (c *Controller) startMatch() {
	if c.state.Phase != PhaseCountdown {
		return
	}
	c.setPhase(PhasePlaying)
	c.state.Red.Score = 0
	c.state.Blue.Score = 0
	c.state.TimeRemaining = c.state.MatchDuration
	c.state.CountdownTime = 0
	for _, p := range c.state.Players() {
		if !p.isCombatant() {
			continue
		}
		p.Stats.reset()
		p.respawn(c.sim.spawnPoint(p.Team))
	}
	c.sim.restartClock()
	c.out.Broadcast(EvtStarted, nil)
}

// checkScoreLimit ends the match when a team reaches the score limit.
func (c *Controller) checkScoreLimit() {
	switch {
	case c.state.Red.Score >= c.state.MaxScore:
		c.endMatch(TeamRed, CauseScoreLimit)
	case c.state.Blue.Score >= c.state.MaxScore:
		c.endMatch(TeamBlue, CauseScoreLimit)
	}
}

// endMatch moves PLAYING -> ENDED, publishes the result and schedules the
// return to the lobby. An empty winner is decided from the scores.
func (c *Controller) endMatch(winner Team, cause EndCause) {
	if c.state.Phase != PhasePlaying {
		return
	}
	c.setPhase(PhaseEnded)

	result := c.results.Aggregate(winner, cause, c.now())
	c.lastResult = &result
	c.out.Broadcast(EvtEnded, result)
	c.emit(EventTypeMatchEnd, result.MVPID, result)
	log.Printf("🏆 [%s] %s wins %d-%d (%s), MVP %s",
		c.roomID, result.WinningTeam, result.RedScore, result.BlueScore, result.Cause, result.MVPID)

	if c.sink != nil {
		c.sink.Offer(result)
	}

	c.resetSeq++
	seq := c.resetSeq
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = c.sched.AfterFunc(c.cfg.ResetDelay, func() { c.resetMatch(seq) })
}

// resetMatch moves ENDED -> LOBBY with a new match id. Teams are kept.
func (c *Controller) resetMatch(seq uint64) {
	if c.closed || seq != c.resetSeq || c.state.Phase != PhaseEnded {
		return
	}
	c.resetTimer = nil

	c.state.clearProjectiles()
	c.state.MatchID = c.newMatchID()
	c.state.TimeRemaining = c.state.MatchDuration
	c.state.CountdownTime = 0
	c.state.Red.Score = 0
	c.state.Blue.Score = 0
	c.state.Locked = false
	for _, p := range c.state.players {
		p.resetForLobby()
	}
	c.sim.restartClock()
	c.setPhase(PhaseLobby)
	c.out.Broadcast(EvtReset, nil)
}

// abortToLobby returns a room that lost a whole team before play started.
func (c *Controller) abortToLobby() {
	if c.state.Phase != PhaseLoading && c.state.Phase != PhaseCountdown {
		return
	}
	c.state.Locked = false
	c.state.CountdownTime = 0
	for _, p := range c.state.players {
		p.IsReady = false
		p.LoadingProgress = 0
	}
	c.sim.restartClock()
	c.setPhase(PhaseLobby)
	c.out.Broadcast(EvtReset, nil)
}
