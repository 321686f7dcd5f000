// Package ingest consumes newly-submitted messages from the broker,
// persists them, and republishes the stored record for fan-out. It is the
// durability point of the pipeline: once a submission reaches the broker,
// a relay crash no longer loses it.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fluxchat/relay/internal/broker"
	"github.com/fluxchat/relay/internal/store"
	"github.com/fluxchat/relay/internal/wire"
)

// Store is the slice of the persistence gateway the worker needs.
type Store interface {
	InsertMessage(ctx context.Context, roomID, userID, username, content, clientGeneratedID string, createdAt time.Time) (wire.StoredMessage, error)
}

// Publisher publishes the persisted event back onto the broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Worker processes chat.message.new envelopes one at a time. Each message
// moves received -> persisted -> acknowledged, or is dropped as poison /
// returned for redelivery on transient failure.
type Worker struct {
	store        Store
	publisher    Publisher
	logger       *slog.Logger
	storeTimeout time.Duration
}

// New creates a Worker.
func New(st Store, publisher Publisher, logger *slog.Logger) *Worker {
	return &Worker{
		store:        st,
		publisher:    publisher,
		logger:       logger,
		storeTimeout: 10 * time.Second,
	}
}

// Handle implements broker.Handler for chat.message.new. The persisted
// event is published before the inbound message is acknowledged, so a
// crash between the two causes redelivery rather than a lost broadcast;
// the store's idempotent insert absorbs the repeat.
func (w *Worker) Handle(_ string, data []byte) broker.Disposition {
	inbound, err := wire.ParseInboundMessage(data)
	if err != nil {
		w.logger.Warn("dropping malformed inbound message", "error", err)
		return broker.Drop
	}

	createdAt := inbound.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.storeTimeout)
	defer cancel()

	stored, err := w.store.InsertMessage(ctx,
		inbound.RoomID, inbound.User.ID, inbound.User.Username,
		inbound.Content, inbound.ClientGeneratedID, createdAt)
	if err != nil {
		if store.IsTransient(err) {
			w.logger.Warn("message persistence failed, requeueing",
				"room", inbound.RoomID, "error", err)
			return broker.Requeue
		}
		w.logger.Error("dropping unpersistable message",
			"room", inbound.RoomID, "error", err)
		return broker.Drop
	}

	envelope := wire.PersistedEnvelope{
		RoomID: stored.RoomID,
		Message: wire.BroadcastMessage{
			StoredMessage:     stored,
			ClientGeneratedID: inbound.ClientGeneratedID,
		},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.logger.Error("dropping unmarshalable persisted envelope", "error", err)
		return broker.Drop
	}

	if err := w.publisher.Publish(ctx, wire.SubjectMessagePersisted, payload); err != nil {
		w.logger.Warn("persisted event publish failed, requeueing",
			"room", stored.RoomID, "message_id", stored.ID, "error", err)
		return broker.Requeue
	}

	w.logger.Info("message persisted",
		"room", stored.RoomID, "message_id", stored.ID, "user", stored.UserID)
	return broker.Ack
}
