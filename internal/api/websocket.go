package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tdm-server/internal/match"
	"tdm-server/internal/metrics"
	"tdm-server/internal/protocol"
	"tdm-server/internal/room"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
	joinTimeout    = 5 * time.Second
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// RoomJoiner seats websocket clients in rooms.
type RoomJoiner interface {
	Join(ctx context.Context, mode, clientID, username, userID string, conn room.Conn) (*room.Room, match.Welcome, error)
	Rejoin(ctx context.Context, roomID, clientID, token string, conn room.Conn) (*room.Room, match.Welcome, error)
}

// WebSocketConfig configures the /ws endpoint.
type WebSocketConfig struct {
	MaxConnections    int
	MaxPerIP          int
	MessagesPerSecond float64 // per connection
	MessageBurst      int
	Origins           []string // CORS-style patterns; nil allows localhost only
}

// WebSocketHandler upgrades /ws requests and pumps frames between the
// socket and the client's room.
//
// Query parameters: username, token (bearer JWT binding the player to a
// profile), codec (json|msgpack), mode. A reconnect passes room, playerId
// and reconnectToken instead of joining a new room.
type WebSocketHandler struct {
	rooms    RoomJoiner
	auth     *Auth
	cfg      WebSocketConfig
	upgrader websocket.Upgrader

	wsLimiter *WebSocketRateLimiter
	active    atomic.Int64
}

// NewWebSocketHandler creates the handler. auth may be nil, in which case
// token parameters are ignored.
func NewWebSocketHandler(rooms RoomJoiner, auth *Auth, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxWSConnectionsTotal
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = MaxWSConnectionsPerIP
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 60
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 120
	}
	if cfg.Origins == nil {
		cfg.Origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	origins := NewOriginPolicy(cfg.Origins)

	h := &WebSocketHandler{
		rooms:     rooms,
		auth:      auth,
		cfg:       cfg,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			metrics.RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ActiveConnections returns the number of open sockets.
func (h *WebSocketHandler) ActiveConnections() int {
	return int(h.active.Load())
}

// ServeHTTP handles incoming WebSocket connections with DoS protection.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)
	query := r.URL.Query()

	if total := h.active.Load(); total >= int64(h.cfg.MaxConnections) {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		metrics.RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	codec, err := protocol.CodecByName(query.Get("codec"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	username := query.Get("username")
	var userID string
	if token := query.Get("token"); token != "" && h.auth != nil {
		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			metrics.RecordConnectionRejected("token")
			writeError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.Subject
		if username == "" {
			username = claims.Username
		}
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		metrics.RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	defer h.wsLimiter.Release(ip)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := newClient(conn, codec)
	metrics.UpdateWSConnections(int(h.active.Add(1)))
	defer func() {
		metrics.UpdateWSConnections(int(h.active.Add(-1)))
	}()
	go c.writePump()

	ctx, cancel := context.WithTimeout(r.Context(), joinTimeout)
	var (
		rm       *room.Room
		clientID string
	)
	if roomID := query.Get("room"); roomID != "" {
		clientID = query.Get("playerId")
		rm, _, err = h.rooms.Rejoin(ctx, roomID, clientID, query.Get("reconnectToken"), c)
	} else {
		clientID = uuid.NewString()
		rm, _, err = h.rooms.Join(ctx, query.Get("mode"), clientID, username, userID, c)
	}
	cancel()
	if err != nil {
		log.Printf("⚠️ WebSocket join from %s failed: %v", ip, err)
		c.sendError("join", err)
		c.Close()
		<-c.closed
		return
	}

	log.Printf("📱 Client %s connected from %s to room %s (%d total)", clientID, ip, rm.ID, h.ActiveConnections())
	c.readPump(rm, clientID, rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst))
	log.Printf("📱 Client %s disconnected", clientID)
}

// client is one websocket connection. It implements room.Conn: the room
// goroutine calls Send, which never blocks.
type client struct {
	conn  *websocket.Conn
	codec protocol.Codec
	send  chan []byte

	done      chan struct{} // Close was called
	closed    chan struct{} // the write pump exited and the socket is closed
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, codec protocol.Codec) *client {
	return &client{
		conn:   conn,
		codec:  codec,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *client) Codec() protocol.Codec { return c.codec }

func (c *client) Send(frame []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close asks the write pump to flush what is queued and close the socket.
func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *client) sendError(msgType string, err error) {
	frame, encErr := protocol.Encode(c.codec, match.EvtError, match.ErrorMessage{
		Message: err.Error(),
		Type:    msgType,
		Code:    match.KindOf(err).String(),
	})
	if encErr == nil {
		c.Send(frame)
	}
}

func (c *client) messageType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *client) write(frame []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(c.messageType(), frame); err != nil {
		return err
	}
	metrics.IncrementWSMessages()
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.closed)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case frame := <-c.send:
					if c.write(frame) != nil {
						return
					}
				default:
					c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

// readPump decodes frames in arrival order and posts them to the room. A
// normal close frame from the client is a consented leave.
func (c *client) readPump(rm *room.Room, clientID string, limiter *rate.Limiter) {
	consented := false
	defer func() {
		rm.Post(room.Disconnect{ClientID: clientID, Conn: c, Consented: consented})
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			consented = websocket.IsCloseError(err, websocket.CloseNormalClosure)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		metrics.IncrementWSReceived()

		input := room.Input{ClientID: clientID, Conn: c}
		in, err := protocol.DecodeInbound(c.codec, frame)
		input.Type = in.Type
		switch {
		case err != nil:
			input.Err = err
		case !limiter.Allow():
			input.Err = match.NewConflictError("too many messages")
		default:
			input.Command, input.Err = protocol.Decode(c.codec, in)
		}
		if !rm.Post(input) {
			return
		}
	}
}
