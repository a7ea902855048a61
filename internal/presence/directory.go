// Package presence keeps the room directory used for matchmaking and the
// public room listing. Rooms publish their metadata at the patch cadence;
// readers see a slightly stale view.
package presence

import (
	"sort"
	"sync"
	"time"

	"tdm-server/internal/match"
)

// DefaultTTL hides rooms that stopped publishing.
const DefaultTTL = 10 * time.Second

// RoomMetadata is one directory entry.
type RoomMetadata struct {
	RoomID     string    `json:"roomId"`
	Clients    int       `json:"clients"`
	MaxClients int       `json:"maxClients"`
	UpdatedAt  time.Time `json:"updatedAt"`
	match.Summary
}

// Joinable reports whether a new player can be seated on a team.
func (m RoomMetadata) Joinable() bool {
	return m.State == match.PhaseLobby && !m.Locked && m.Clients < m.MaxClients
}

// Directory is an in-process room directory safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]RoomMetadata
	ttl   time.Duration
	now   func() time.Time
}

// NewDirectory creates an empty directory. A zero ttl uses DefaultTTL.
func NewDirectory(ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		rooms: make(map[string]RoomMetadata),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Publish stores the latest metadata for a room.
func (d *Directory) Publish(meta RoomMetadata) {
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = d.now()
	}
	d.mu.Lock()
	d.rooms[meta.RoomID] = meta
	d.mu.Unlock()
}

// Remove drops a room from the directory.
func (d *Directory) Remove(roomID string) {
	d.mu.Lock()
	delete(d.rooms, roomID)
	d.mu.Unlock()
}

// Get returns the metadata of one room.
func (d *Directory) Get(roomID string) (RoomMetadata, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	meta, ok := d.rooms[roomID]
	if !ok || d.stale(meta) {
		return RoomMetadata{}, false
	}
	return meta, true
}

// List returns every fresh room ordered by room id.
func (d *Directory) List() []RoomMetadata {
	d.mu.RLock()
	out := make([]RoomMetadata, 0, len(d.rooms))
	for _, meta := range d.rooms {
		if !d.stale(meta) {
			out = append(out, meta)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Open picks a joinable room for mode, preferring the fullest one so
// matches fill up before new rooms are created.
func (d *Directory) Open(mode string) (string, bool) {
	best := RoomMetadata{Clients: -1}
	for _, meta := range d.List() {
		if meta.Mode != mode || !meta.Joinable() {
			continue
		}
		if meta.Clients > best.Clients {
			best = meta
		}
	}
	return best.RoomID, best.Clients >= 0
}

func (d *Directory) stale(meta RoomMetadata) bool {
	return d.now().Sub(meta.UpdatedAt) > d.ttl
}
