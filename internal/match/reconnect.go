package match

import (
	"crypto/subtle"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Room schedulers deliver f on the room goroutine,
// so callbacks may touch MatchState directly.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type graceWait struct {
	timer   Timer
	pending bool
	seq     uint64
}

// ReconnectionManager keeps disconnected players' slots for a bounded grace
// window. Each player has at most one outstanding wait.
type ReconnectionManager struct {
	state    *MatchState
	grace    time.Duration
	sched    Scheduler
	waits    map[string]*graceWait
	seq      uint64
	onExpire func(playerID string)
}

func newReconnectionManager(state *MatchState, grace time.Duration, sched Scheduler) *ReconnectionManager {
	return &ReconnectionManager{
		state: state,
		grace: grace,
		sched: sched,
		waits: make(map[string]*graceWait),
	}
}

// Begin marks p disconnected and starts its grace wait, replacing any wait
// already running for p.
func (m *ReconnectionManager) Begin(p *Player) {
	p.Connected = false
	if prev, ok := m.waits[p.ID]; ok {
		prev.timer.Stop()
		prev.pending = false
	}

	m.seq++
	seq, id := m.seq, p.ID
	w := &graceWait{pending: true, seq: seq}
	w.timer = m.sched.AfterFunc(m.grace, func() { m.expire(id, seq) })
	m.waits[id] = w
}

// expire fires when a wait runs out. A stale callback from a replaced or
// cancelled wait is ignored.
func (m *ReconnectionManager) expire(id string, seq uint64) {
	w, ok := m.waits[id]
	if !ok || !w.pending || w.seq != seq {
		return
	}
	w.pending = false
	delete(m.waits, id)
	if m.onExpire != nil {
		m.onExpire(id)
	}
}

// Resume cancels the wait of id if token matches and marks it connected.
func (m *ReconnectionManager) Resume(id, token string) (*Player, error) {
	w, ok := m.waits[id]
	if !ok || !w.pending {
		return nil, notFoundf("no reconnection pending for %s", id)
	}
	p, ok := m.state.Player(id)
	if !ok {
		return nil, notFoundf("player %s not found", id)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.reconnectToken)) != 1 {
		return nil, validationf("invalid reconnection token")
	}
	w.timer.Stop()
	w.pending = false
	delete(m.waits, id)
	p.Connected = true
	return p, nil
}

// Pending reports whether id is inside its grace window.
func (m *ReconnectionManager) Pending(id string) bool {
	w, ok := m.waits[id]
	return ok && w.pending
}

// Forget drops the wait of a player removed by another path.
func (m *ReconnectionManager) Forget(id string) {
	if w, ok := m.waits[id]; ok {
		w.timer.Stop()
		delete(m.waits, id)
	}
}

// CancelAll stops every wait. Used on room teardown.
func (m *ReconnectionManager) CancelAll() {
	for id, w := range m.waits {
		w.timer.Stop()
		delete(m.waits, id)
	}
}
