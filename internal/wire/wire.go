// Package wire defines the message shapes shared between the relay, the
// ingestion worker, and connected clients: the client command protocol,
// the broker envelopes, and the broker subject names they travel on.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Broker subjects. All chat traffic flows through the CHAT stream under
// the chat.> subject space.
const (
	StreamName = "CHAT"

	SubjectMessageNew       = "chat.message.new"
	SubjectMessagePersisted = "chat.message.persisted"
	SubjectRoomJoined       = "chat.room.joined"
	SubjectRoomLeft         = "chat.room.left"
)

// Client command types accepted over the WebSocket.
const (
	CommandJoin    = "join"
	CommandLeave   = "leave"
	CommandMessage = "message"
)

// ErrMalformed reports a payload that cannot be parsed or is missing a
// required field. Malformed payloads are never retried.
var ErrMalformed = errors.New("malformed payload")

// Identity is a verified user identity extracted from a bearer token.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Command is a single client->relay instruction.
type Command struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Content  string `json:"content,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// ParseCommand decodes and validates a raw client command. Unknown types
// and missing room ids are malformed; the session logs and ignores them.
func ParseCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch cmd.Type {
	case CommandJoin, CommandLeave, CommandMessage:
	default:
		return Command{}, fmt.Errorf("%w: unknown command type %q", ErrMalformed, cmd.Type)
	}
	if cmd.RoomID == "" {
		return Command{}, fmt.Errorf("%w: %s command without roomId", ErrMalformed, cmd.Type)
	}
	return cmd, nil
}

// InboundMessage travels on chat.message.new from a session to the
// ingestion worker. CreatedAt is server-assigned at submission time.
type InboundMessage struct {
	RoomID            string    `json:"roomId"`
	Content           string    `json:"content"`
	User              Identity  `json:"user"`
	ClientGeneratedID string    `json:"clientGeneratedId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ParseInboundMessage decodes an inbound envelope and checks the fields
// the worker cannot proceed without.
func ParseInboundMessage(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.RoomID == "" {
		return InboundMessage{}, fmt.Errorf("%w: inbound message without roomId", ErrMalformed)
	}
	if msg.User.ID == "" {
		return InboundMessage{}, fmt.Errorf("%w: inbound message without user id", ErrMalformed)
	}
	return msg, nil
}

// StoredMessage is the durable record returned by the message store.
type StoredMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// BroadcastMessage is a stored message carrying the client-supplied
// correlation id, so the sender can reconcile its optimistic local echo
// with the server-confirmed record.
type BroadcastMessage struct {
	StoredMessage
	ClientGeneratedID string `json:"clientGeneratedId,omitempty"`
}

// PersistedEnvelope travels on chat.message.persisted from the worker to
// every broadcast dispatcher.
type PersistedEnvelope struct {
	RoomID  string           `json:"roomId"`
	Message BroadcastMessage `json:"message"`
}

// ParsePersistedEnvelope decodes a persisted envelope for fan-out.
func ParsePersistedEnvelope(raw []byte) (PersistedEnvelope, error) {
	var env PersistedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PersistedEnvelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.RoomID == "" {
		return PersistedEnvelope{}, fmt.Errorf("%w: persisted envelope without roomId", ErrMalformed)
	}
	return env, nil
}

// ServerMessage is the relay->client frame. Delivery is at-least-once:
// after a dispatcher restart a client can see the same message id twice
// and must de-duplicate on Data.ID.
type ServerMessage struct {
	Type string           `json:"type"`
	Data BroadcastMessage `json:"data"`
}

// RoomEvent announces a join or leave on chat.room.joined / chat.room.left.
// Announcements are observability traffic; nothing in the relay consumes
// them.
type RoomEvent struct {
	RoomID string   `json:"roomId"`
	User   Identity `json:"user"`
}
