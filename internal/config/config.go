// Package config provides centralized configuration management.
//
// Every section has a DefaultX() constructor; environment variables are
// parsed on top of the defaults, so an unset variable keeps the default.
package config

import (
	"fmt"
	"strings"
	"time"

	"tdm-server/internal/match"

	"github.com/caarlos0/env/v11"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP and websocket settings.
type ServerConfig struct {
	Port              int           `env:"PORT"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" envSeparator:","`
	MaxWSConnections  int           `env:"MAX_WS_CONNECTIONS"`
	MaxWSPerIP        int           `env:"MAX_WS_PER_IP"`
	MessagesPerSecond float64       `env:"WS_MESSAGES_PER_SECOND"` // per connection
	MessageBurst      int           `env:"WS_MESSAGE_BURST"`
	RequestsPerSecond float64       `env:"HTTP_REQUESTS_PER_SECOND"` // per IP
	RequestBurst      int           `env:"HTTP_REQUEST_BURST"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"`
	TickRate          int           `env:"TICK_RATE"`
	PatchRate         int           `env:"PATCH_RATE"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		MaxWSConnections:  500,
		MaxWSPerIP:        10,
		MessagesPerSecond: 60, // player:move arrives at frame rate
		MessageBurst:      120,
		RequestsPerSecond: 10,
		RequestBurst:      20,
		ShutdownTimeout:   10 * time.Second,
		TickRate:          30,
		PatchRate:         20,
	}
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// MATCH CONFIGURATION
// =============================================================================

// MatchConfig holds the rules every room is created with.
type MatchConfig struct {
	Mode               string        `env:"MATCH_MODE"`
	MatchDuration      int           `env:"MATCH_DURATION"` // seconds
	MaxScore           int           `env:"MATCH_MAX_SCORE"`
	MaxPlayersPerTeam  int           `env:"MATCH_MAX_PLAYERS_PER_TEAM"`
	CountdownSeconds   int           `env:"MATCH_COUNTDOWN"`
	RespawnSeconds     float64       `env:"MATCH_RESPAWN_SECONDS"`
	ProjectileDamage   int           `env:"MATCH_PROJECTILE_DAMAGE"`
	ProjectileLifetime time.Duration `env:"MATCH_PROJECTILE_LIFETIME"`
	ReconnectGrace     time.Duration `env:"MATCH_RECONNECT_GRACE"`
	ResetDelay         time.Duration `env:"MATCH_RESET_DELAY"`
	Seed               int64         `env:"MATCH_SEED"` // 0 = time based
}

// DefaultMatch mirrors match.DefaultConfig.
func DefaultMatch() MatchConfig {
	d := match.DefaultConfig()
	return MatchConfig{
		Mode:               d.Mode,
		MatchDuration:      d.MatchDuration,
		MaxScore:           d.MaxScore,
		MaxPlayersPerTeam:  d.MaxPlayersPerTeam,
		CountdownSeconds:   d.CountdownSeconds,
		RespawnSeconds:     d.RespawnSeconds,
		ProjectileDamage:   d.ProjectileDamage,
		ProjectileLifetime: d.ProjectileLifetime,
		ReconnectGrace:     d.ReconnectGrace,
		ResetDelay:         d.ResetDelay,
		Seed:               d.Seed,
	}
}

// Rules converts the section into the match package's Config.
func (c MatchConfig) Rules() match.Config {
	return match.Config{
		Mode:               c.Mode,
		MatchDuration:      c.MatchDuration,
		MaxScore:           c.MaxScore,
		MaxPlayersPerTeam:  c.MaxPlayersPerTeam,
		CountdownSeconds:   c.CountdownSeconds,
		RespawnSeconds:     c.RespawnSeconds,
		ProjectileDamage:   c.ProjectileDamage,
		ProjectileLifetime: c.ProjectileLifetime,
		ReconnectGrace:     c.ReconnectGrace,
		ResetDelay:         c.ResetDelay,
		Seed:               c.Seed,
	}
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig holds file locations.
type StorageConfig struct {
	DBPath       string `env:"DB_PATH"`
	EventLogPath string `env:"EVENT_LOG_PATH"` // empty disables the event log
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{
		DBPath:       "tdm.db",
		EventLogPath: "events.jsonl",
	}
}

// =============================================================================
// AUTH CONFIGURATION
// =============================================================================

// AuthConfig holds account and token settings.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"` // empty generates a per-process secret
	TokenTTL   time.Duration `env:"JWT_TTL"`
	BcryptCost int           `env:"BCRYPT_COST"`
}

// DefaultAuth returns the default auth configuration.
func DefaultAuth() AuthConfig {
	return AuthConfig{
		TokenTTL:   7 * 24 * time.Hour,
		BcryptCost: 12,
	}
}

// =============================================================================
// DEBUG CONFIGURATION
// =============================================================================

// DebugConfig holds the pprof/metrics server settings.
type DebugConfig struct {
	Enabled       bool   `env:"DEBUG_SERVER_ENABLED"`
	ListenAddr    string `env:"DEBUG_ADDR"`
	AllowExternal bool   `env:"ALLOW_DEBUG_EXTERNAL"`
	BasicAuthUser string `env:"DEBUG_USER"`
	BasicAuthPass string `env:"DEBUG_PASS"`
}

// DefaultDebug keeps the debug server on loopback.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server  ServerConfig
	Match   MatchConfig
	Storage StorageConfig
	Auth    AuthConfig
	Debug   DebugConfig
}

// Default returns the configuration with no environment applied.
func Default() AppConfig {
	return AppConfig{
		Server:  DefaultServer(),
		Match:   DefaultMatch(),
		Storage: DefaultStorage(),
		Auth:    DefaultAuth(),
		Debug:   DefaultDebug(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	cfg := Default()
	if err := ParseEnv(&cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c AppConfig) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "PORT must be 1-65535")
	}
	if c.Server.TickRate <= 0 || c.Server.PatchRate <= 0 {
		problems = append(problems, "TICK_RATE and PATCH_RATE must be positive")
	}
	if c.Match.MaxPlayersPerTeam <= 0 {
		problems = append(problems, "MATCH_MAX_PLAYERS_PER_TEAM must be positive")
	}
	if c.Match.MatchDuration <= 0 || c.Match.MaxScore <= 0 {
		problems = append(problems, "MATCH_DURATION and MATCH_MAX_SCORE must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		problems = append(problems, "BCRYPT_COST must be 4-31")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
