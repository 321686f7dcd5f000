// Package relay dispatches persisted-message events, fanning each one out
// to the live members of the target room.
package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/fluxchat/relay/internal/broker"
	"github.com/fluxchat/relay/internal/registry"
	"github.com/fluxchat/relay/internal/wire"
)

// Dispatcher handles chat.message.persisted deliveries. It acknowledges
// only after the fan-out attempt completes, so a crash mid-fan-out causes
// redelivery; clients de-duplicate on message id.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher reading memberships from reg.
func NewDispatcher(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, logger: logger}
}

// Handle implements broker.Handler for chat.message.persisted. A room
// with no live members acknowledges silently; a failed send to one member
// never aborts delivery to the rest.
func (d *Dispatcher) Handle(_ string, data []byte) broker.Disposition {
	env, err := wire.ParsePersistedEnvelope(data)
	if err != nil {
		d.logger.Warn("dropping malformed persisted envelope", "error", err)
		return broker.Drop
	}

	members := d.registry.MembersOf(env.RoomID)
	if len(members) == 0 {
		return broker.Ack
	}

	frame, err := json.Marshal(wire.ServerMessage{Type: wire.CommandMessage, Data: env.Message})
	if err != nil {
		d.logger.Error("dropping unencodable broadcast", "room", env.RoomID, "error", err)
		return broker.Drop
	}

	delivered := 0
	for _, member := range members {
		if err := member.Conn.Deliver(frame); err != nil {
			d.logger.Warn("fan-out delivery failed",
				"room", env.RoomID, "user", member.Identity.ID, "error", err)
			continue
		}
		delivered++
	}

	d.logger.Info("broadcast delivered",
		"room", env.RoomID, "message_id", env.Message.ID,
		"delivered", delivered, "members", len(members))
	return broker.Ack
}
