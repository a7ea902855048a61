// Package metrics exposes Prometheus metrics and the localhost debug server.
package metrics

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-player or per-room labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tdm_tick_duration_seconds",
		Help:    "Time spent in one room simulation tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tdm_rooms_active",
		Help: "Rooms currently running",
	})

	playersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tdm_players_connected",
		Help: "Players currently seated in a room",
	})

	matchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdm_matches_finished_total",
		Help: "Matches that reached the ended state",
	}, []string{"cause"}) // Bounded: time_expired, score_limit, team_empty, shutdown

	commandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdm_commands_rejected_total",
		Help: "Client commands rejected by the match",
	}, []string{"type", "code"})

	handlerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdm_handler_panics_total",
		Help: "Panics recovered inside a room",
	})

	resultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdm_results_dropped_total",
		Help: "Match results dropped because the recorder queue was full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "auth", "room"

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_sent_total",
		Help: "Total WebSocket frames sent",
	})

	wsMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_received_total",
		Help: "Total WebSocket frames received",
	})
)

// knownTypes bounds the "type" label of rejected commands.
var knownTypes = map[string]bool{
	"auth": true, "player:ready": true, "player:select-team": true, "player:move": true,
	"projectile:create": true, "player:hit": true, "chat": true, "leave": true,
}

// DebugConfig configures the debug server
type DebugConfig struct {
	Enabled       bool
	ListenAddr    string // keep on loopback in production
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// StartDebugServer starts the pprof and metrics server in the background.
func StartDebugServer(cfg DebugConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		log.Println("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordTick records tick timing for metrics
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// RoomOpened and RoomClosed track the active room gauge
func RoomOpened() { activeRooms.Inc() }
func RoomClosed() { activeRooms.Dec() }

// PlayerSeated and PlayerReleased track the connected player gauge
func PlayerSeated()   { playersConnected.Inc() }
func PlayerReleased() { playersConnected.Dec() }

// RecordMatchFinished counts an ended match by cause
func RecordMatchFinished(cause string) {
	matchesFinished.WithLabelValues(cause).Inc()
}

// RecordCommandRejected counts a rejected command by message type and error code
func RecordCommandRejected(msgType, code string) {
	if !knownTypes[msgType] {
		msgType = "unknown"
	}
	commandsRejected.WithLabelValues(msgType, code).Inc()
}

// RecordPanic counts a recovered room panic
func RecordPanic() {
	handlerPanics.Inc()
}

// RecordResultDropped counts a result the recorder could not queue
func RecordResultDropped() {
	resultsDropped.Inc()
}

// RegisterEventLogStats exports event log counters read from stats.
func RegisterEventLogStats(stats func() (total, dropped uint64)) {
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	}, func() float64 {
		total, _ := stats()
		return float64(total)
	})
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	}, func() float64 {
		_, dropped := stats()
		return float64(dropped)
	})
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the sent frame counter
func IncrementWSMessages() {
	wsMessagesSent.Inc()
}

// IncrementWSReceived increments the received frame counter
func IncrementWSReceived() {
	wsMessagesReceived.Inc()
}
