package api

import (
	"encoding/json"
	"net/http"
	"time"

	"tdm-server/internal/presence"

	"github.com/go-chi/chi/v5"
)

// RoomDirectory is the read side of the presence directory.
type RoomDirectory interface {
	List() []presence.RoomMetadata
	Get(roomID string) (presence.RoomMetadata, bool)
}

// routerHandlers holds the dependencies of the plain REST handlers.
type routerHandlers struct {
	rooms     RoomDirectory
	roomCount func() int
	started   time.Time
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.roomCount != nil {
		count = h.roomCount()
	} else if h.rooms != nil {
		count = len(h.rooms.List())
	}
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Seconds(),
		"rooms": map[string]int{
			"count": count,
		},
	})
}

func (h *routerHandlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := []presence.RoomMetadata{}
	if h.rooms != nil {
		rooms = append(rooms, h.rooms.List()...)
	}
	if mode := r.URL.Query().Get("mode"); mode != "" {
		filtered := rooms[:0]
		for _, meta := range rooms {
			if meta.Mode == mode {
				filtered = append(filtered, meta)
			}
		}
		rooms = filtered
	}
	writeJSON(w, rooms)
}

func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if h.rooms == nil {
		writeError(w, "Room not found", http.StatusNotFound)
		return
	}
	meta, ok := h.rooms.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, meta)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
