package store

import "context"

// Schema statements are idempotent so every process can run them at boot.
// The partial unique index on (room_id, client_generated_id) is what makes
// redelivered message inserts safe: a second insert of the same client
// submission hits the index instead of creating a duplicate row.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username VARCHAR(100) UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(150) NOT NULL,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		password TEXT,
		created_by UUID REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS room_members (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID REFERENCES rooms(id) ON DELETE CASCADE,
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id UUID REFERENCES rooms(id) ON DELETE CASCADE,
		user_id UUID REFERENCES users(id) ON DELETE SET NULL,
		content TEXT NOT NULL,
		client_generated_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_created
		ON messages(room_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_room_client_id
		ON messages(room_id, client_generated_id)
		WHERE client_generated_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_room_members_user
		ON room_members(user_id)`,
}

// InitSchema creates the tables and indexes if they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	return nil
}
