// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
)

// ConversationStore persists per-visitor, per-tab conversation state.
// Implemented by SQLiteStore and by the optional Redis-backed store.
type ConversationStore interface {
	// GetConversation retrieves conversation state, or nil if none exists.
	GetConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error)

	// SaveConversation creates or replaces conversation state.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes conversation state, if any.
	DeleteConversation(ctx context.Context, userID, sessionID string) error
}

// Repository defines the full persistence surface of the service.
type Repository interface {
	ConversationStore

	// SaveConsultationRequest durably stores a completed intake record.
	// Called at most once per completed intake pass; the caller treats any
	// error as terminal for that pass and never retries.
	SaveConsultationRequest(ctx context.Context, req *domain.ConsultationRequest) error

	// ListConsultationRequests returns stored records, newest first.
	// limit <= 0 returns everything.
	ListConsultationRequests(ctx context.Context, limit int) ([]*domain.ConsultationRequest, error)

	// CleanupExpiredConversations removes conversations idle longer than ttl.
	CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
