package protocol

import (
	"bytes"

	"tdm-server/internal/match"
)

// Outbound is the envelope of every server event.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is a client envelope whose data has not been decoded yet.
type Inbound struct {
	Type string
	Data []byte
}

// Encode wraps data in an event envelope.
func Encode(c Codec, event string, data any) ([]byte, error) {
	return c.Marshal(Outbound{Event: event, Data: data})
}

// DecodeInbound splits a frame into message type and raw data.
func DecodeInbound(c Codec, frame []byte) (Inbound, error) {
	in, err := c.decodeInbound(frame)
	if err != nil {
		return Inbound{}, match.NewValidationError("malformed message: %v", err)
	}
	if in.Type == "" {
		return Inbound{}, match.NewValidationError("message type is required")
	}
	return in, nil
}

// Decode converts an inbound envelope into a match command.
func Decode(c Codec, in Inbound) (match.Command, error) {
	var cmd match.Command
	var err error
	switch in.Type {
	case match.MsgAuth:
		var m match.AuthCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgReady:
		var m match.ReadyCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgSelectTeam:
		var m match.SelectTeamCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgMove:
		var m match.MoveCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgFire:
		var m match.FireCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgHit:
		var m match.HitCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgChat:
		var m match.ChatCommand
		err = unmarshalData(c, in.Data, &m)
		cmd = m
	case match.MsgLeave:
		cmd = match.LeaveCommand{}
	default:
		return nil, match.NewValidationError("unknown message type %q", in.Type)
	}
	if err != nil {
		return nil, match.NewValidationError("invalid %s payload: %v", in.Type, err)
	}
	return cmd, nil
}

// unmarshalData leaves v at its zero value when the envelope had no data.
func unmarshalData(c Codec, data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return c.Unmarshal(data, v)
}
