package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerConfig holds everything NewServer wires together.
type ServerConfig struct {
	Addr      string
	Rooms     RoomJoiner
	Directory RoomDirectory
	RoomCount func() int
	Auth      *Auth

	CORSOrigins []string
	RateLimit   RateLimitConfig
	WebSocket   WebSocketConfig
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	router      *chi.Mux
	ws          *WebSocketHandler
	rateLimiter *IPRateLimiter
	auth        *Auth
	http        *http.Server
	stopOnce    sync.Once
}

// NewServer builds the router and websocket handler. Nothing listens until
// Start is called.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(cfg ServerConfig) *Server {
	if cfg.WebSocket.Origins == nil {
		cfg.WebSocket.Origins = cfg.CORSOrigins
	}
	s := &Server{
		ws:          NewWebSocketHandler(cfg.Rooms, cfg.Auth, cfg.WebSocket),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		auth:        cfg.Auth,
	}
	s.router = NewRouter(RouterConfig{
		Rooms:       cfg.Directory,
		RoomCount:   cfg.RoomCount,
		Auth:        cfg.Auth,
		WebSocket:   s.ws,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		Started:     time.Now(),
	})
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens and serves until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	log.Printf("🌐 API server starting on %s", s.http.Addr)
	log.Printf("🔌 WebSocket endpoint: ws://localhost%s/ws", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked websocket connections are not tracked by http.Server; rooms
// close them when they shut down.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.Stop()
	return err
}

// Stop releases background workers.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Printf("🛡️ HTTP rate limiter: %v, websocket: %v", s.rateLimiter.GetStats(), s.ws.wsLimiter.GetStats())
		s.rateLimiter.Stop()
		if s.auth != nil {
			s.auth.Stop()
		}
	})
}
