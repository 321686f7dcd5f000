package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const insertUserSQL = `
	INSERT INTO users (id, username, password_hash)
	VALUES ($1, $2, $3)
	RETURNING id, username, password_hash, created_at`

// CreateUser registers a new account. A taken username returns ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, insertUserSQL, uuid.NewString(), username, passwordHash).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, fmt.Errorf("%w: username %q", ErrDuplicate, username)
		}
		return User{}, classify(err)
	}
	return u, nil
}

const userByUsernameSQL = `
	SELECT id, username, password_hash, created_at
	FROM users WHERE username = $1`

// UserByUsername looks up an account for login.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, userByUsernameSQL, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, classify(err)
	}
	return u, nil
}
