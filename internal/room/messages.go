package room

import (
	"sync/atomic"

	"tdm-server/internal/match"
	"tdm-server/internal/protocol"
)

// Conn is a client connection as seen by a room. Send must not block.
type Conn interface {
	Send(frame []byte) error
	Close() error
	Codec() protocol.Codec
}

// Join seats a new client.
type Join struct {
	ClientID string
	Username string
	UserID   string
	Conn     Conn
	Reply    chan<- JoinResult

	claim *joinClaim
}

// Rejoin resumes a client inside its reconnection grace window.
type Rejoin struct {
	ClientID string
	Token    string
	Conn     Conn
	Reply    chan<- JoinResult

	claim *joinClaim
}

// joinClaim settles the race between the room seating a client and the
// caller giving up on the reply. Whichever side moves it off pending first
// decides the outcome.
type joinClaim struct {
	state atomic.Int32
}

const (
	claimPending int32 = iota
	claimAccepted
	claimAbandoned
)

// accept is called by the room once the seat is taken. A nil claim belongs
// to a caller that never gives up.
func (c *joinClaim) accept() bool {
	return c == nil || c.state.CompareAndSwap(claimPending, claimAccepted)
}

// abandon is called by the waiting caller when its context ends.
func (c *joinClaim) abandon() bool {
	return c.state.CompareAndSwap(claimPending, claimAbandoned)
}

// JoinResult answers Join and Rejoin.
type JoinResult struct {
	Welcome match.Welcome
	Err     error
}

// Input is one decoded client message. Err carries a decoding failure so the
// room can answer it in order with the client's other messages.
type Input struct {
	ClientID string
	Conn     Conn
	Type     string
	Command  match.Command
	Err      error
}

// Disconnect is posted when a client's socket closes.
type Disconnect struct {
	ClientID  string
	Conn      Conn
	Consented bool
}

// call runs on the room goroutine; timer callbacks arrive this way.
type call func()

type shutdown struct {
	message string
	done    chan struct{}
}
