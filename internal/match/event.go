package match

import (
	"encoding/json"
	"time"
)

// EventType classifies match log entries.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypePlayerDisconnect
	EventTypePlayerReconnect
	EventTypeFire
	EventTypeHit
	EventTypeKill
	EventTypeRespawn
	EventTypePhase
	EventTypeMatchEnd
)

// EventVersion is bumped whenever a payload changes shape.
const EventVersion uint8 = 1

// Event is one line of the match event log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // unix nano
	Sequence  uint64          `json:"sequence"`
	RoomID    string          `json:"roomId"`
	MatchID   string          `json:"matchId"`
	PlayerID  string          `json:"playerId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns the log name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypePlayerDisconnect:
		return "player_disconnect"
	case EventTypePlayerReconnect:
		return "player_reconnect"
	case EventTypeFire:
		return "fire"
	case EventTypeHit:
		return "hit"
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	case EventTypePhase:
		return "phase"
	case EventTypeMatchEnd:
		return "match_end"
	default:
		return "unknown"
	}
}

// MarshalText writes the readable name into the JSONL file.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Typed payloads

// JoinPayload is logged when a player enters a room.
type JoinPayload struct {
	Username string `json:"username"`
	Team     Team   `json:"team"`
}

// LeavePayload is logged when a player's slot is released.
type LeavePayload struct {
	Team      Team `json:"team"`
	Consented bool `json:"consented"`
}

// FirePayload is logged for each accepted projectile.
type FirePayload struct {
	ProjectileID string `json:"projectileId"`
	Team         Team   `json:"team"`
}

// HitPayload is logged for each validated hit.
type HitPayload struct {
	ProjectileID string `json:"projectileId"`
	TargetID     string `json:"targetId"`
	Damage       int    `json:"damage"`
	TargetHealth int    `json:"targetHealth"`
}

// KillPayload is logged when a hit is lethal.
type KillPayload struct {
	VictimID  string `json:"victimId"`
	RedScore  int    `json:"redScore"`
	BlueScore int    `json:"blueScore"`
}

// RespawnPayload is logged when a dead player re-enters play.
type RespawnPayload struct {
	Position Vector3 `json:"position"`
}

// PhasePayload is logged on every lifecycle transition.
type PhasePayload struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, roomID, matchID, playerID string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		RoomID:    roomID,
		MatchID:   matchID,
		PlayerID:  playerID,
		Payload:   raw,
	}
}
