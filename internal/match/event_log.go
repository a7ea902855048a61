package match

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventQueueSize     = 4096                   // pending events before drops
	MaxEventsPerSec    = 10000                  // global rate limit
	MaxEventsPerRoom   = 500                    // per-room rate limit per second
	BatchFlushSize     = 64                     // events per batch write
	BatchFlushInterval = 100 * time.Millisecond // how often to flush
	RoomLimiterCleanup = 5 * time.Minute
)

// EventLog is a bounded, rate-limited JSONL writer shared by every room.
// Emit never blocks; when the queue is full the event is dropped.
type EventLog struct {
	queue chan Event

	globalLimiter *rate.Limiter
	roomLimiters  sync.Map // map[string]*roomLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file *os.File
	out  *bufio.Writer

	sequence     atomic.Uint64
	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type roomLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates an idle event log. Call Start to begin writing.
func NewEventLog() *EventLog {
	return &EventLog{
		queue:         make(chan Event, EventQueueSize),
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens path for append and launches the writer.
func (el *EventLog) Start(path string) error {
	if el.running.Load() {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	el.file = file
	el.out = bufio.NewWriter(file)

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()
		if el.out != nil {
			el.out.Flush()
		}
		if el.file != nil {
			el.file.Close()
		}
	})
}

// Emit queues an event. It returns false if the event was rate limited,
// the queue was full or the log is not running.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	if !el.globalLimiter.Allow() || !el.roomLimiter(event.RoomID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	event.Sequence = el.sequence.Add(1)
	select {
	case el.queue <- event:
		el.totalCount.Add(1)
		return true
	default:
		el.droppedCount.Add(1)
		return false
	}
}

func (el *EventLog) roomLimiter(roomID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.roomLimiters.Load(roomID); ok {
		e := v.(*roomLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	entry := &roomLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerRoom, MaxEventsPerRoom/5)}
	entry.lastUsed.Store(now)
	actual, _ := el.roomLimiters.LoadOrStore(roomID, entry)
	return actual.(*roomLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	pending := 0
	for {
		select {
		case <-el.stopChan:
			for {
				select {
				case ev := <-el.queue:
					el.write(ev)
				default:
					return
				}
			}
		case ev := <-el.queue:
			el.write(ev)
			pending++
			if pending >= BatchFlushSize {
				el.out.Flush()
				pending = 0
			}
		case <-ticker.C:
			if pending > 0 {
				el.out.Flush()
				pending = 0
			}
		}
	}
}

func (el *EventLog) write(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	el.out.Write(data)
	el.out.WriteByte('\n')
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(RoomLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-RoomLimiterCleanup).UnixNano()
			el.roomLimiters.Range(func(key, value any) bool {
				if value.(*roomLimiterEntry).lastUsed.Load() < cutoff {
					el.roomLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() (total, dropped uint64) {
	return el.totalCount.Load(), el.droppedCount.Load()
}
