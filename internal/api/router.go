package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Rooms: presence.NewDirectory(0),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Rooms backs /api/rooms. Optional.
	Rooms RoomDirectory

	// RoomCount reports running rooms for /health. If nil, the directory
	// listing is counted.
	RoomCount func() int

	// Auth serves /auth. Optional; the routes are absent without it.
	Auth *Auth

	// WebSocket serves /ws. Optional.
	WebSocket http.Handler

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	// Started is reported as uptime by /health. Zero means now.
	Started time.Time
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter opens no listeners, so it is safe to use with httptest.NewServer.
// Pass RateLimiter to keep control of the limiter's cleanup goroutine.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	started := cfg.Started
	if started.IsZero() {
		started = time.Now()
	}
	h := &routerHandlers{
		rooms:     cfg.Rooms,
		roomCount: cfg.RoomCount,
		started:   started,
	}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", h.handleListRooms)
		r.Get("/rooms/{id}", h.handleGetRoom)
	})

	if cfg.Auth != nil {
		r.Route("/auth", cfg.Auth.Routes)
	}

	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}

	return r
}
