package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

const conversationKeyPrefix = "conversation:"

// RedisConversationStore implements ConversationStore on Redis. Conversation
// state is stored as one JSON blob per user/session with a rolling TTL, so
// idle conversations expire without a cleanup worker.
type RedisConversationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisConversationStore creates a Redis-backed conversation store.
func NewRedisConversationStore(rdb *redis.Client, ttl time.Duration) *RedisConversationStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisConversationStore{rdb: rdb, ttl: ttl}
}

func conversationKey(userID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s", conversationKeyPrefix, userID, sessionID)
}

// GetConversation retrieves conversation state, or nil if none exists.
func (s *RedisConversationStore) GetConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error) {
	data, err := s.rdb.Get(ctx, conversationKey(userID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// SaveConversation creates or replaces conversation state and refreshes the TTL.
func (s *RedisConversationStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	conv.UpdatedAt = time.Now()
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	key := conversationKey(conv.UserID, conv.SessionID)
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes conversation state, if any.
func (s *RedisConversationStore) DeleteConversation(ctx context.Context, userID, sessionID string) error {
	if err := s.rdb.Del(ctx, conversationKey(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
