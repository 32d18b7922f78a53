package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 5 * time.Minute

// StartCleanupWorker runs a background goroutine that periodically removes
// conversations idle for longer than ttl. Stale intake state is dropped
// rather than resumed for a visitor who walked away.
func StartCleanupWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Conversation cleanup worker started", "interval", cleanupWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if deleted, err := repo.CleanupExpiredConversations(ctx, ttl); err != nil {
					slog.Error("Conversation cleanup failed", "error", err)
				} else if deleted > 0 {
					slog.Info("Expired conversations removed", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Conversation cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
