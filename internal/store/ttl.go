package store

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// CleanupCallback is called for expired sessions before they are
// deleted, so callers can tear down any live connection first.
type CleanupCallback func(sessionID string)

// StartTTLWorker runs a background goroutine that periodically sweeps
// for sessions idle longer than ttl and deletes them.
func StartTTLWorker(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	if onCleanup != nil {
		sessions, err := repo.ListSessions(ctx)
		if err != nil {
			slog.Error("TTL worker failed to list sessions", "error", err)
			return
		}
		for _, session := range sessions {
			if session.Expired(ttl) {
				onCleanup(session.SessionID)
			}
		}
	}

	deleted, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to cleanup expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up expired sessions", "count", deleted)
	}
}
