package store

import (
	"context"
	"log"
	"sync"
	"time"

	"tdm-server/internal/match"
	"tdm-server/internal/metrics"
)

const (
	RecorderQueueSize = 64
	recordAttempts    = 3
	recordTimeout     = 5 * time.Second
)

// MatchWriter persists one finished match.
type MatchWriter interface {
	RecordMatch(ctx context.Context, result match.MatchResult) error
}

// Recorder writes finished matches in the background so rooms never wait
// on the database.
type Recorder struct {
	store   MatchWriter
	queue   chan match.MatchResult
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	backoff time.Duration
}

// NewRecorder creates a recorder. Call Start to begin writing.
func NewRecorder(store MatchWriter) *Recorder {
	return &Recorder{
		store:   store,
		queue:   make(chan match.MatchResult, RecorderQueueSize),
		quit:    make(chan struct{}),
		backoff: 200 * time.Millisecond,
	}
}

// Start begins the writer loop
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.loop()
	log.Println("💾 Match recorder started")
}

// Stop writes everything still queued and waits for the writer.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.quit)
		r.wg.Wait()
		log.Println("💾 Match recorder stopped")
	})
}

// Offer queues a result. Non-blocking: when the queue is full the result is
// dropped (drop newest).
func (r *Recorder) Offer(result match.MatchResult) {
	select {
	case r.queue <- result:
	default:
		metrics.RecordResultDropped()
		log.Printf("⚠️ Recorder queue full, dropping match %s", result.MatchID)
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			for {
				select {
				case result := <-r.queue:
					r.write(result, 1)
				default:
					return
				}
			}
		case result := <-r.queue:
			r.write(result, recordAttempts)
		}
	}
}

func (r *Recorder) write(result match.MatchResult, attempts int) {
	backoff := r.backoff
	for i := 1; ; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := r.store.RecordMatch(ctx, result)
		cancel()
		if err == nil {
			log.Printf("💾 Saved match %s (%d players)", result.MatchID, len(result.PlayerStats))
			return
		}
		if i >= attempts {
			log.Printf("❌ Failed to save match %s: %v", result.MatchID, err)
			return
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-r.quit:
			// shutting down: one immediate retry, then give up
			attempts = i + 1
		}
	}
}
