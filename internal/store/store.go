// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Repository defines the interface for persisting session metadata.
type Repository interface {
	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID, or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns all sessions, most recently used first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// TouchSession updates the last_used_at timestamp for a session.
	TouchSession(ctx context.Context, sessionID string, usedAt time.Time) error

	// DeleteSession removes a session record.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes sessions idle longer than ttl and
	// returns how many were deleted.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
