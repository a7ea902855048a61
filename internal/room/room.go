// Package room runs each match as a single-goroutine actor. Client messages,
// simulation ticks and timer callbacks are all serialized through the room
// inbox, so the match state needs no locks.
package room

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"tdm-server/internal/match"
	"tdm-server/internal/metrics"
	"tdm-server/internal/presence"
	"tdm-server/internal/protocol"
)

const (
	DefaultTickRate  = 30 // simulation steps per second
	DefaultPatchRate = 20 // state patches per second
	InboxSize        = 256

	internalErrorMessage = "An unexpected error occurred on the server"
)

// ErrClosed is returned when a message is posted to a stopped room.
var ErrClosed = errors.New("room closed")

// errAbandoned answers a join whose caller stopped waiting. Nobody reads it.
var errAbandoned = errors.New("join abandoned by caller")

// Options configures a room.
type Options struct {
	ID        string
	Config    match.Config
	Events    *match.EventLog
	Results   match.ResultSink
	Chat      match.ChatLimiter
	Directory *presence.Directory
	TickRate  int
	PatchRate int
}

// Room owns one match and the connections of its players.
type Room struct {
	ID      string
	Inbox   chan any
	OnEmpty func(id string) // called on the room goroutine when the last player is gone

	ctrl      *match.Controller
	clients   map[string]Conn
	seated    bool // a client has joined at least once
	dir       *presence.Directory
	tickRate  int
	patchRate int

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a room. Call Run to start it.
func New(opts Options) *Room {
	r := &Room{
		ID:        opts.ID,
		Inbox:     make(chan any, InboxSize),
		clients:   make(map[string]Conn),
		dir:       opts.Directory,
		tickRate:  opts.TickRate,
		patchRate: opts.PatchRate,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if r.tickRate <= 0 {
		r.tickRate = DefaultTickRate
	}
	if r.patchRate <= 0 {
		r.patchRate = DefaultPatchRate
	}
	r.ctrl = match.NewController(match.Options{
		RoomID:      opts.ID,
		Config:      opts.Config,
		Scheduler:   roomScheduler{r},
		Broadcaster: r,
		Results:     resultCounter{next: opts.Results},
		Events:      opts.Events,
		Chat:        opts.Chat,
	})
	return r
}

// Stop ends Run. It does not wait; use Done for that.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done is closed once Run has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Run processes the inbox until Stop is called.
func (r *Room) Run() {
	defer close(r.done)

	tick := time.NewTicker(time.Second / time.Duration(r.tickRate))
	defer tick.Stop()
	patch := time.NewTicker(time.Second / time.Duration(r.patchRate))
	defer patch.Stop()

	log.Printf("🏟️ [%s] room open", r.ID)
	r.publish()

	last := time.Now()
	for {
		select {
		case <-r.quit:
			r.teardown()
			return
		case msg := <-r.Inbox:
			r.safely(func() { r.handle(msg) })
			r.checkEmpty()
		case now := <-tick.C:
			dt := now.Sub(last)
			last = now
			r.safely(func() { r.ctrl.Tick(dt) })
			metrics.RecordTick(time.Since(now))
		case <-patch.C:
			r.safely(r.broadcastPatch)
		}
	}
}

// Post delivers msg to the room. It returns false once the room has stopped.
func (r *Room) Post(msg any) bool {
	select {
	case r.Inbox <- msg:
		return true
	case <-r.quit:
		return false
	}
}

// Join seats a client and waits for its welcome.
func (r *Room) Join(ctx context.Context, clientID, username, userID string, conn Conn) (match.Welcome, error) {
	reply := make(chan JoinResult, 1)
	claim := &joinClaim{}
	return r.await(ctx, Join{ClientID: clientID, Username: username, UserID: userID, Conn: conn, Reply: reply, claim: claim}, claim, reply)
}

// Rejoin resumes a client and waits for its welcome.
func (r *Room) Rejoin(ctx context.Context, clientID, token string, conn Conn) (match.Welcome, error) {
	reply := make(chan JoinResult, 1)
	claim := &joinClaim{}
	return r.await(ctx, Rejoin{ClientID: clientID, Token: token, Conn: conn, Reply: reply, claim: claim}, claim, reply)
}

// await posts a join and waits for its reply. Giving up after the post marks
// the claim abandoned so the room releases the seat itself; if the room won
// the race the reply is already on its way and is returned instead.
func (r *Room) await(ctx context.Context, msg any, claim *joinClaim, reply <-chan JoinResult) (match.Welcome, error) {
	select {
	case r.Inbox <- msg:
	case <-r.quit:
		return match.Welcome{}, ErrClosed
	case <-ctx.Done():
		return match.Welcome{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Welcome, res.Err
	case <-r.done:
		return match.Welcome{}, ErrClosed
	case <-ctx.Done():
		if claim.abandon() {
			return match.Welcome{}, ctx.Err()
		}
		res := <-reply
		return res.Welcome, res.Err
	}
}

// Inspect runs fn on the room goroutine and waits for it.
func (r *Room) Inspect(ctx context.Context, fn func(*match.Controller)) error {
	finished := make(chan struct{})
	msg := call(func() {
		defer close(finished)
		fn(r.ctrl)
	})
	select {
	case r.Inbox <- msg:
	case <-r.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown warns the room's clients and settles a running match.
func (r *Room) Shutdown(ctx context.Context, message string) error {
	done := make(chan struct{})
	if !r.Post(shutdown{message: message, done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) handle(msg any) {
	switch m := msg.(type) {
	case Join:
		r.handleJoin(m)
	case Rejoin:
		r.handleRejoin(m)
	case Input:
		r.handleInput(m)
	case Disconnect:
		r.handleDisconnect(m)
	case call:
		m()
	case shutdown:
		r.ctrl.Shutdown(m.message)
		close(m.done)
	default:
		log.Printf("⚠️ [%s] unknown inbox message %T", r.ID, msg)
	}
}

// handleJoin attaches the connection first so the client receives its
// welcome and every event the join triggers.
func (r *Room) handleJoin(m Join) {
	res := JoinResult{Err: match.NewConflictError("join failed")}
	defer func() { m.Reply <- res }()

	attached := r.attach(m.ClientID, m.Conn)
	w, err := r.ctrl.Join(m.ClientID, m.Username, m.UserID)
	if err == nil && !m.claim.accept() {
		log.Printf("⌛ [%s] %s stopped waiting for its seat, releasing it", r.ID, m.ClientID)
		if err := r.ctrl.Leave(m.ClientID, true); err != nil {
			log.Printf("⚠️ [%s] release %s: %v", r.ID, m.ClientID, err)
		}
		err = errAbandoned
	}
	if err != nil && attached {
		r.detach(m.ClientID)
	}
	res = JoinResult{Welcome: w, Err: err}
}

func (r *Room) handleRejoin(m Rejoin) {
	res := JoinResult{Err: match.NewNotFoundError("reconnect failed")}
	defer func() { m.Reply <- res }()

	attached := r.attach(m.ClientID, m.Conn)
	w, err := r.ctrl.Reconnect(m.ClientID, m.Token)
	if err == nil && !m.claim.accept() {
		// back into the grace window, as if the new socket dropped at once
		log.Printf("⌛ [%s] %s stopped waiting for its reconnect", r.ID, m.ClientID)
		if err := r.ctrl.Leave(m.ClientID, false); err != nil {
			log.Printf("⚠️ [%s] release %s: %v", r.ID, m.ClientID, err)
		}
		err = errAbandoned
	}
	if err != nil && attached {
		r.detach(m.ClientID)
	}
	res = JoinResult{Welcome: w, Err: err}
}

func (r *Room) handleInput(m Input) {
	if c, ok := r.clients[m.ClientID]; !ok || c != m.Conn {
		return
	}
	if m.Err != nil {
		r.reject(m.ClientID, m.Type, m.Err)
		return
	}
	if err := r.ctrl.Handle(m.ClientID, m.Command); err != nil {
		r.reject(m.ClientID, m.Type, err)
		return
	}
	if _, ok := m.Command.(match.LeaveCommand); ok {
		if c, ok := r.clients[m.ClientID]; ok {
			r.detach(m.ClientID)
			c.Close()
		}
	}
}

// handleDisconnect ignores sockets that were already replaced or released.
func (r *Room) handleDisconnect(m Disconnect) {
	if c, ok := r.clients[m.ClientID]; !ok || c != m.Conn {
		return
	}
	r.detach(m.ClientID)
	if err := r.ctrl.Leave(m.ClientID, m.Consented); err != nil && !errors.Is(err, match.ErrNotFound) {
		log.Printf("⚠️ [%s] leave %s: %v", r.ID, m.ClientID, err)
	}
}

func (r *Room) reject(clientID, msgType string, err error) {
	kind := match.KindOf(err)
	if kind == match.KindNotFound {
		log.Printf("🔍 [%s] %s from %s: %v", r.ID, msgType, clientID, err)
	}
	metrics.RecordCommandRejected(msgType, kind.String())
	r.Send(clientID, match.EvtError, match.ErrorMessage{
		Message: err.Error(),
		Type:    msgType,
		Code:    kind.String(),
	})
}

func (r *Room) attach(clientID string, c Conn) bool {
	if _, taken := r.clients[clientID]; taken {
		return false
	}
	r.clients[clientID] = c
	r.seated = true
	metrics.PlayerSeated()
	return true
}

func (r *Room) detach(clientID string) {
	if _, ok := r.clients[clientID]; !ok {
		return
	}
	delete(r.clients, clientID)
	metrics.PlayerReleased()
}

// safely keeps one failing message from taking the room down.
func (r *Room) safely(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("💥 [%s] recovered panic: %v\n%s", r.ID, rec, debug.Stack())
			metrics.RecordPanic()
			r.Broadcast(match.EvtError, match.ErrorMessage{
				Message: internalErrorMessage,
				Code:    match.KindUnknown.String(),
			})
		}
	}()
	fn()
}

func (r *Room) checkEmpty() {
	if !r.seated || len(r.clients) > 0 || r.ctrl.State().PlayerCount() > 0 {
		return
	}
	if r.OnEmpty != nil {
		r.OnEmpty(r.ID)
	}
}

// Broadcast encodes data once per codec in use and sends it to every client.
// A client whose buffer is full is closed; its read pump reports the
// disconnect through the inbox.
func (r *Room) Broadcast(event string, data any) {
	frames := make(map[string][]byte, 2)
	for id, c := range r.clients {
		codec := c.Codec()
		frame, ok := frames[codec.Name()]
		if !ok {
			var err error
			if frame, err = protocol.Encode(codec, event, data); err != nil {
				log.Printf("⚠️ [%s] encode %s as %s: %v", r.ID, event, codec.Name(), err)
				frame = nil
			}
			frames[codec.Name()] = frame // nil marks a codec that failed
		}
		if frame == nil {
			continue
		}
		if err := c.Send(frame); err != nil {
			log.Printf("⚠️ [%s] dropping slow client %s: %v", r.ID, id, err)
			c.Close()
		}
	}
}

// Send delivers one event to a single client.
func (r *Room) Send(clientID, event string, data any) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	frame, err := protocol.Encode(c.Codec(), event, data)
	if err != nil {
		log.Printf("⚠️ [%s] encode %s: %v", r.ID, event, err)
		return
	}
	if err := c.Send(frame); err != nil {
		c.Close()
	}
}

func (r *Room) broadcastPatch() {
	if len(r.clients) > 0 {
		r.Broadcast(match.EvtStatePatch, r.ctrl.Snapshot())
	}
	r.publish()
}

func (r *Room) publish() {
	if r.dir == nil {
		return
	}
	r.dir.Publish(presence.RoomMetadata{
		RoomID:     r.ID,
		Clients:    r.ctrl.State().PlayerCount(),
		MaxClients: r.ctrl.Config().MaxClients(),
		Summary:    r.ctrl.Summary(),
	})
}

func (r *Room) teardown() {
	r.ctrl.Close()
	for id, c := range r.clients {
		r.detach(id)
		c.Close()
	}
	if r.dir != nil {
		r.dir.Remove(r.ID)
	}
	metrics.RoomClosed()
	log.Printf("🏁 [%s] room closed", r.ID)
}

// roomScheduler delivers timer callbacks through the inbox.
type roomScheduler struct {
	r *Room
}

func (s roomScheduler) AfterFunc(d time.Duration, f func()) match.Timer {
	return time.AfterFunc(d, func() { s.r.Post(call(f)) })
}

// resultCounter counts finished matches before handing them on.
type resultCounter struct {
	next match.ResultSink
}

func (rc resultCounter) Offer(result match.MatchResult) {
	metrics.RecordMatchFinished(result.Cause)
	if rc.next != nil {
		rc.next.Offer(result)
	}
}
