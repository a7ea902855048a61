package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tdm-server/internal/api"
	"tdm-server/internal/chat"
	"tdm-server/internal/config"
	"tdm-server/internal/match"
	"tdm-server/internal/metrics"
	"tdm-server/internal/presence"
	"tdm-server/internal/room"
	"tdm-server/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  TEAM DEATHMATCH SERVER")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	serverCfg := appConfig.Server
	rules := appConfig.Match.Rules()
	log.Printf("🎮 Config: %s mode, %d per team, %ds matches to %d kills, %d TPS, %d patches/s",
		rules.Mode, rules.MaxPlayersPerTeam, rules.MatchDuration, rules.MaxScore, serverCfg.TickRate, serverCfg.PatchRate)

	// Start event log
	var events *match.EventLog
	if path := appConfig.Storage.EventLogPath; path != "" {
		events = match.NewEventLog()
		if err := events.Start(path); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
			events = nil
		} else {
			metrics.RegisterEventLogStats(events.Stats)
			log.Printf("📝 Event log: %s", path)
		}
	}

	// Start debug server
	debugCfg := appConfig.Debug
	if debugCfg.Enabled {
		if err := metrics.StartDebugServer(metrics.DebugConfig{
			Enabled:       true,
			ListenAddr:    debugCfg.ListenAddr,
			AllowExternal: debugCfg.AllowExternal,
			BasicAuthUser: debugCfg.BasicAuthUser,
			BasicAuthPass: debugCfg.BasicAuthPass,
		}); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	db, err := store.Open(appConfig.Storage.DBPath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	log.Printf("💾 Database: %s", appConfig.Storage.DBPath)

	recorder := store.NewRecorder(db)
	recorder.Start()

	chatLimiter := chat.NewRateLimiter(chat.DefaultRateLimitConfig)

	manager := room.NewManager(room.ManagerOptions{
		Config:    rules,
		Events:    events,
		Results:   recorder,
		Chat:      chatLimiter,
		Directory: presence.NewDirectory(0),
		TickRate:  serverCfg.TickRate,
		PatchRate: serverCfg.PatchRate,
	})

	auth, err := api.NewAuth(db, api.AuthConfig{
		Secret:     appConfig.Auth.JWTSecret,
		TokenTTL:   appConfig.Auth.TokenTTL,
		BcryptCost: appConfig.Auth.BcryptCost,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	server := api.NewServer(api.ServerConfig{
		Addr:        serverCfg.Addr(),
		Rooms:       manager,
		Directory:   manager.Directory(),
		RoomCount:   manager.Count,
		Auth:        auth,
		CORSOrigins: serverCfg.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RequestsPerSecond,
			Burst:             serverCfg.RequestBurst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		WebSocket: api.WebSocketConfig{
			MaxConnections:    serverCfg.MaxWSConnections,
			MaxPerIP:          serverCfg.MaxWSPerIP,
			MessagesPerSecond: serverCfg.MessagesPerSecond,
			MessageBurst:      serverCfg.MessageBurst,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Printf("❌ Server error: %v", err)
		}
	}

	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	manager.Shutdown(shutdownCtx, "Server is shutting down")
	recorder.Stop()
	chatLimiter.Stop()
	if events != nil {
		events.Stop()
	}
	if err := db.Close(); err != nil {
		log.Printf("⚠️ Close database: %v", err)
	}
	log.Println("👋 Goodbye!")
}
