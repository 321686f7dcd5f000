// Package store is the persistence gateway: durable messages, plus the
// user, room, and membership tables behind the HTTP API. It classifies
// failures as transient or permanent so the ingestion worker can decide
// between redelivery and dropping a poison message.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// User is an account row. PasswordHash never leaves the API process.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is a chat room row. Password is empty for public rooms.
type Room struct {
	ID        string
	Name      string
	IsPrivate bool
	Password  string
	CreatedBy string
	CreatedAt time.Time
}

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
