package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fluxchat/relay/internal/wire"
)

const insertMessageSQL = `
	INSERT INTO messages (id, room_id, user_id, content, client_generated_id, created_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	ON CONFLICT (room_id, client_generated_id) WHERE client_generated_id IS NOT NULL
	DO NOTHING
	RETURNING id, created_at`

const selectExistingMessageSQL = `
	SELECT id, created_at FROM messages
	WHERE room_id = $1 AND client_generated_id = $2`

// InsertMessage durably stores one chat message and returns the stored
// record. The insert is idempotent per (room, clientGeneratedID): a
// redelivered envelope resolves to the row created by the first delivery
// instead of inserting twice. An empty clientGeneratedID disables
// de-duplication for that message.
func (s *Store) InsertMessage(ctx context.Context, roomID, userID, username, content, clientGeneratedID string, createdAt time.Time) (wire.StoredMessage, error) {
	msg := wire.StoredMessage{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		Content:  content,
	}

	err := s.pool.QueryRow(ctx, insertMessageSQL,
		msg.ID, roomID, userID, content, clientGeneratedID, createdAt,
	).Scan(&msg.ID, &msg.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) && clientGeneratedID != "" {
		// Conflict with an earlier delivery of the same submission.
		err = s.pool.QueryRow(ctx, selectExistingMessageSQL, roomID, clientGeneratedID).
			Scan(&msg.ID, &msg.CreatedAt)
	}
	if err != nil {
		return wire.StoredMessage{}, classify(err)
	}
	return msg, nil
}

const roomMessagesSQL = `
	SELECT m.id, m.room_id, COALESCE(m.user_id::text, ''), COALESCE(u.username, ''), m.content, m.created_at
	FROM messages m
	LEFT JOIN users u ON u.id = m.user_id
	WHERE m.room_id = $1
	ORDER BY m.created_at DESC
	LIMIT $2 OFFSET $3`

// RoomMessages returns one page of a room's history, newest first.
func (s *Store) RoomMessages(ctx context.Context, roomID string, page, pageSize int) ([]wire.StoredMessage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, roomMessagesSQL, roomID, pageSize, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var messages []wire.StoredMessage
	for rows.Next() {
		var m wire.StoredMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Content, &m.CreatedAt); err != nil {
			return nil, classify(err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}
