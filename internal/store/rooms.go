package store

import (
	"context"

	"github.com/google/uuid"
)

const insertRoomSQL = `
	INSERT INTO rooms (id, name, is_private, password, created_by)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	RETURNING id, name, is_private, COALESCE(password, ''), created_by, created_at`

// CreateRoom creates a room. password is only meaningful for private rooms.
func (s *Store) CreateRoom(ctx context.Context, name string, isPrivate bool, password, createdBy string) (Room, error) {
	var r Room
	err := s.pool.QueryRow(ctx, insertRoomSQL, uuid.NewString(), name, isPrivate, password, createdBy).
		Scan(&r.ID, &r.Name, &r.IsPrivate, &r.Password, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return Room{}, classify(err)
	}
	return r, nil
}

const listRoomsSQL = `
	SELECT id, name, is_private, COALESCE(password, ''), COALESCE(created_by::text, ''), created_at
	FROM rooms ORDER BY created_at DESC`

// ListRooms returns every room, newest first.
func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.pool.Query(ctx, listRoomsSQL)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.IsPrivate, &r.Password, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, classify(err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return rooms, nil
}

const roomByIDSQL = `
	SELECT id, name, is_private, COALESCE(password, ''), COALESCE(created_by::text, ''), created_at
	FROM rooms WHERE id = $1`

// RoomByID fetches one room, returning ErrNotFound when it does not exist.
func (s *Store) RoomByID(ctx context.Context, roomID string) (Room, error) {
	var r Room
	err := s.pool.QueryRow(ctx, roomByIDSQL, roomID).
		Scan(&r.ID, &r.Name, &r.IsPrivate, &r.Password, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return Room{}, classify(err)
	}
	return r, nil
}

const addRoomMemberSQL = `
	INSERT INTO room_members (id, room_id, user_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (room_id, user_id) DO NOTHING`

// AddRoomMember records that a user joined a room. Re-joining is a no-op.
func (s *Store) AddRoomMember(ctx context.Context, roomID, userID string) error {
	if _, err := s.pool.Exec(ctx, addRoomMemberSQL, uuid.NewString(), roomID, userID); err != nil {
		return classify(err)
	}
	return nil
}
