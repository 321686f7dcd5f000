package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("already exists")
	// ErrTransient wraps failures worth retrying: connection loss,
	// timeouts, resource exhaustion, serialization conflicts.
	ErrTransient = errors.New("transient storage error")
	// ErrPermanent wraps failures that will repeat on every retry, such
	// as constraint violations on malformed data.
	ErrPermanent = errors.New("permanent storage error")
)

// IsTransient reports whether err is worth a retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

const uniqueViolation = "23505"

// classify wraps a query error as transient or permanent. Anything that
// is not a definite server-side rejection is treated as transient, since
// redelivering a retryable message is cheap and dropping one is not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "53", "57": // connection, resources, operator intervention
				return fmt.Errorf("%w: %v", ErrTransient, err)
			}
		}
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}
