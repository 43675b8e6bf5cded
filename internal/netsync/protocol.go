// Package netsync keeps two game replicas consistent over a websocket:
// a client that ships local actions to the peer and a hub that applies
// them to the authoritative engine in arrival order.
package netsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/konivrer/konivrer-server-go/internal/game"
)

// MessageType tags a wire envelope.
type MessageType string

const (
	MsgPlayerConnect   MessageType = "player_connect"
	MsgGameCreated     MessageType = "game_created"
	MsgGameJoined      MessageType = "game_joined"
	MsgGameStateUpdate MessageType = "game_state_update"
	MsgPlayerAction    MessageType = "player_action"
	MsgChatMessage     MessageType = "chat_message"
	MsgPing            MessageType = "ping"
	MsgPong            MessageType = "pong"
	MsgError           MessageType = "error"

	// MsgDisconnected is a local event only, raised to listeners when the
	// transport drops; it never crosses the wire.
	MsgDisconnected MessageType = "disconnected"
)

// Envelope is the single-frame wire format: a type tag plus the
// type-specific payload.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ConnectPayload announces a player. On a fresh connect GameID and
// PlayerID are empty; on a rejoin after reconnect they identify the seat
// to resume.
type ConnectPayload struct {
	PlayerName  string      `json:"playerName"`
	DeviceClass DeviceClass `json:"deviceClass,omitempty"`
	GameID      string      `json:"gameId,omitempty"`
	PlayerID    int         `json:"playerId"`
	Rejoin      bool        `json:"rejoin,omitempty"`
}

// ConnectAckPayload is the server's reply to player_connect.
type ConnectAckPayload struct {
	PlayerID int    `json:"playerId"`
	GameID   string `json:"gameId,omitempty"`
}

// GameCreatedPayload tells the first player their game is waiting for an
// opponent.
type GameCreatedPayload struct {
	GameID   string `json:"gameId"`
	PlayerID int    `json:"playerId"`
}

// GameJoinedPayload tells both players the match is on.
type GameJoinedPayload struct {
	GameID   string `json:"gameId"`
	PlayerID int    `json:"playerId"`
	Opponent string `json:"opponent"`
}

// ActionPayload forwards one player action; the receiving side feeds it
// to the same ProcessAction entry point the sender used.
type ActionPayload struct {
	GameID     string          `json:"gameId"`
	PlayerID   int             `json:"playerId"`
	ActionType game.ActionType `json:"actionType"`
	ActionData game.ActionData `json:"actionData"`
}

// StateUpdatePayload carries a player-scoped view of the authoritative
// state.
type StateUpdatePayload struct {
	GameID string          `json:"gameId"`
	View   *game.StateView `json:"view"`
}

// ChatPayload relays a chat line within a game.
type ChatPayload struct {
	GameID    string    `json:"gameId"`
	PlayerID  int       `json:"playerId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PingPayload and PongPayload carry the heartbeat; the pong echoes the
// ping so the sender can compute round-trip time.
type PingPayload struct {
	Seq    int   `json:"seq"`
	SentAt int64 `json:"sentAt"` // unix milliseconds
}

type PongPayload struct {
	Seq    int   `json:"seq"`
	SentAt int64 `json:"sentAt"`
}

// ErrorPayload surfaces a failure to the peer or the local UI.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
