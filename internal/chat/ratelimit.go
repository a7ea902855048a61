package chat

import (
	"sync"
	"time"
)

// RateLimiter implements per-player chat throttling: a fixed window cap plus
// a minimum gap between lines.
type RateLimiter struct {
	mu       sync.Mutex
	counts   map[string]*playerLimit
	config   RateLimitConfig
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

type playerLimit struct {
	count     int
	windowEnd time.Time
	lastLine  time.Time
}

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	// MaxPerWindow is max lines per window
	MaxPerWindow int
	// WindowDuration is the window size
	WindowDuration time.Duration
	// CooldownDuration is minimum time between lines
	CooldownDuration time.Duration
}

// DefaultRateLimitConfig for match chat
var DefaultRateLimitConfig = RateLimitConfig{
	MaxPerWindow:     5,
	WindowDuration:   5 * time.Second,
	CooldownDuration: 300 * time.Millisecond,
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := newRateLimiter(cfg, time.Now)
	go rl.cleanupLoop()
	return rl
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		counts:   make(map[string]*playerLimit),
		config:   cfg,
		now:      now,
		stopChan: make(chan struct{}),
	}
}

// Allow checks if a player may send another line
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	limit, exists := rl.counts[key]
	if !exists {
		rl.counts[key] = &playerLimit{
			count:     1,
			windowEnd: now.Add(rl.config.WindowDuration),
			lastLine:  now,
		}
		return true
	}

	if now.Sub(limit.lastLine) < rl.config.CooldownDuration {
		return false
	}

	if now.After(limit.windowEnd) {
		limit.count = 1
		limit.windowEnd = now.Add(rl.config.WindowDuration)
		limit.lastLine = now
		return true
	}

	if limit.count >= rl.config.MaxPerWindow {
		return false
	}

	limit.count++
	limit.lastLine = now
	return true
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// cleanupLoop forgets idle players every minute
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.prune(rl.now().Add(-5 * time.Minute))
		}
	}
}

func (rl *RateLimiter) prune(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, limit := range rl.counts {
		if limit.lastLine.Before(cutoff) {
			delete(rl.counts, key)
		}
	}
}
