package match

// Command is a decoded client message addressed to a room.
type Command interface {
	// Type is the wire name of the message, echoed in error replies.
	Type() string
}

// Inbound message names.
const (
	MsgAuth       = "auth"
	MsgReady      = "player:ready"
	MsgSelectTeam = "player:select-team"
	MsgMove       = "player:move"
	MsgFire       = "projectile:create"
	MsgHit        = "player:hit"
	MsgChat       = "chat"
	MsgLeave      = "leave"
)

// AuthCommand attaches a profile to the sender.
type AuthCommand struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ReadyCommand reports loading progress.
type ReadyCommand struct {
	Ready           bool    `json:"ready"`
	LoadingProgress float64 `json:"loadingProgress"`
}

// SelectTeamCommand requests a team change in the lobby.
type SelectTeamCommand struct {
	Team Team `json:"team"`
}

// MoveCommand carries the sender's client-simulated movement.
type MoveCommand struct {
	Position  Vector3    `json:"position"`
	Rotation  Quaternion `json:"rotation"`
	Animation Animation  `json:"animation"`
}

// FireCommand requests a projectile.
type FireCommand struct {
	Position  Vector3 `json:"position"`
	Direction Vector3 `json:"direction"`
	Color     string  `json:"color,omitempty"`
}

// HitCommand reports that the sender's projectile struck a target.
type HitCommand struct {
	ProjectileID string `json:"projectileId"`
	TargetID     string `json:"targetId"`
}

// ChatCommand is a chat line from the sender.
type ChatCommand struct {
	Text string `json:"text"`
}

// LeaveCommand is an explicit, consented leave.
type LeaveCommand struct{}

func (AuthCommand) Type() string       { return MsgAuth }
func (ReadyCommand) Type() string      { return MsgReady }
func (SelectTeamCommand) Type() string { return MsgSelectTeam }
func (MoveCommand) Type() string       { return MsgMove }
func (FireCommand) Type() string       { return MsgFire }
func (HitCommand) Type() string        { return MsgHit }
func (ChatCommand) Type() string       { return MsgChat }
func (LeaveCommand) Type() string      { return MsgLeave }

// Outbound event names.
const (
	EvtWelcome      = "welcome"
	EvtGameState    = "game:state"
	EvtLoading      = "game:loading"
	EvtCountdown    = "game:countdown"
	EvtStarted      = "game:started"
	EvtKillFeed     = "kill:feed"
	EvtEnded        = "game:ended"
	EvtReset        = "game:reset"
	EvtChat         = "chat"
	EvtError        = "error"
	EvtShutdown     = "server:shutdown"
	EvtReconnected  = "player:reconnected"
	EvtDisconnected = "player:disconnected"
	EvtStatePatch   = "state:patch"
)

// Welcome is sent to a player on join and on reconnect.
type Welcome struct {
	PlayerID       string `json:"playerId"`
	ReconnectToken string `json:"reconnectToken"`
	MatchID        string `json:"matchId"`
	State          Phase  `json:"state"`
	Team           Team   `json:"team"`
	RedScore       int    `json:"redScore"`
	BlueScore      int    `json:"blueScore"`
	TimeRemaining  int    `json:"timeRemaining"`
	Mode           string `json:"mode"`
}

// GameStateMessage answers an auth message.
type GameStateMessage struct {
	State         Phase  `json:"state"`
	TimeRemaining int    `json:"timeRemaining"`
	RedScore      int    `json:"redScore"`
	BlueScore     int    `json:"blueScore"`
	Mode          string `json:"mode"`
}

// CountdownMessage carries the seconds left before play.
type CountdownMessage struct {
	Time int `json:"time"`
}

// KillFeedMessage announces a kill to the room.
type KillFeedMessage struct {
	Killer     string `json:"killer"`
	KillerTeam Team   `json:"killerTeam"`
	Victim     string `json:"victim"`
	VictimTeam Team   `json:"victimTeam"`
}

// ChatMessage is a broadcast chat line.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Team      Team   `json:"team"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ErrorMessage is sent for rejected actions and handler failures.
type ErrorMessage struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
}

// ShutdownMessage warns clients the server is going away.
type ShutdownMessage struct {
	Message string `json:"message"`
}

// PlayerPresenceMessage announces a connection change of a player.
type PlayerPresenceMessage struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}
