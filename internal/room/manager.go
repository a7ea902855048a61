package room

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"tdm-server/internal/match"
	"tdm-server/internal/metrics"
	"tdm-server/internal/presence"

	"github.com/google/uuid"
)

// ManagerOptions configures every room a Manager creates.
type ManagerOptions struct {
	Config    match.Config
	Events    *match.EventLog
	Results   match.ResultSink
	Chat      match.ChatLimiter
	Directory *presence.Directory
	TickRate  int
	PatchRate int
}

// Manager creates rooms on demand and disposes of them when they empty.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  ManagerOptions
	dir   *presence.Directory
}

// NewManager creates a manager with no rooms.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Directory == nil {
		opts.Directory = presence.NewDirectory(0)
	}
	return &Manager{
		rooms: make(map[string]*Room),
		opts:  opts,
		dir:   opts.Directory,
	}
}

// Directory returns the presence directory the rooms publish to.
func (m *Manager) Directory() *presence.Directory {
	return m.dir
}

// Mode returns the game mode rooms are created with.
func (m *Manager) Mode() string {
	cfg := m.opts.Config
	if cfg.Mode == "" {
		return match.ModeClassic
	}
	return cfg.Mode
}

// Join seats a client in an open room for mode, creating a room when none
// is open. A room that filled up or closed since it was listed is skipped.
func (m *Manager) Join(ctx context.Context, mode, clientID, username, userID string, conn Conn) (*Room, match.Welcome, error) {
	if mode == "" {
		mode = m.Mode()
	}
	if mode != m.Mode() {
		return nil, match.Welcome{}, match.NewValidationError("unsupported mode %q", mode)
	}

	r := m.open(mode)
	for attempt := 0; ; attempt++ {
		w, err := r.Join(ctx, clientID, username, userID, conn)
		if err == nil {
			return r, w, nil
		}
		retry := errors.Is(err, ErrClosed) || errors.Is(err, match.ErrConflict)
		if !retry || attempt > 0 {
			return nil, match.Welcome{}, err
		}
		r = m.create()
	}
}

// Rejoin resumes a client in the room it dropped out of.
func (m *Manager) Rejoin(ctx context.Context, roomID, clientID, token string, conn Conn) (*Room, match.Welcome, error) {
	r, ok := m.Get(roomID)
	if !ok {
		return nil, match.Welcome{}, match.NewNotFoundError("room %s not found", roomID)
	}
	w, err := r.Rejoin(ctx, clientID, token, conn)
	if errors.Is(err, ErrClosed) {
		err = match.NewNotFoundError("room %s not found", roomID)
	}
	if err != nil {
		return nil, match.Welcome{}, err
	}
	return r, w, nil
}

// Get returns a running room.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Count returns the number of running rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Shutdown warns every room, settles running matches and stops the rooms.
func (m *Manager) Shutdown(ctx context.Context, message string) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	for _, r := range rooms {
		if err := r.Shutdown(ctx, message); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("⚠️ [%s] shutdown: %v", r.ID, err)
		}
		r.Stop()
		select {
		case <-r.Done():
		case <-ctx.Done():
		}
	}
	log.Printf("🛑 %d rooms shut down", len(rooms))
}

func (m *Manager) open(mode string) *Room {
	if id, ok := m.dir.Open(mode); ok {
		if r, ok := m.Get(id); ok {
			return r
		}
	}
	return m.create()
}

func (m *Manager) create() *Room {
	r := New(Options{
		ID:        uuid.NewString(),
		Config:    m.opts.Config,
		Events:    m.opts.Events,
		Results:   m.opts.Results,
		Chat:      m.opts.Chat,
		Directory: m.dir,
		TickRate:  m.opts.TickRate,
		PatchRate: m.opts.PatchRate,
	})
	r.OnEmpty = m.remove

	m.mu.Lock()
	m.rooms[r.ID] = r
	m.mu.Unlock()

	metrics.RoomOpened()
	go r.Run()
	return r
}

// remove runs on the room goroutine of the emptied room.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if ok {
		r.Stop()
	}
}
