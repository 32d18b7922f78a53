package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	conversationMu sync.Mutex // Mutex for conversation operations to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS consultation_requests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		company TEXT NOT NULL,
		employees TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NOT NULL,
		requirements TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON consultation_requests(created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		stage TEXT NOT NULL,
		completion_down INTEGER DEFAULT 0,
		record_json TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveConsultationRequest durably stores a completed intake record.
func (s *SQLiteStore) SaveConsultationRequest(ctx context.Context, req *domain.ConsultationRequest) error {
	query := `
	INSERT INTO consultation_requests (id, name, company, employees, phone, email, requirements, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		req.ID, req.Name, req.Company, req.Employees,
		req.Phone, req.Email, req.Requirements, req.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert consultation request: %w", err)
	}
	return nil
}

// ListConsultationRequests returns stored records, newest first.
func (s *SQLiteStore) ListConsultationRequests(ctx context.Context, limit int) ([]*domain.ConsultationRequest, error) {
	query := `
		SELECT id, name, company, employees, phone, email, requirements, created_at
		FROM consultation_requests ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query consultation requests: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close consultation request rows", "error", closeErr)
		}
	}()

	var reqs []*domain.ConsultationRequest
	for rows.Next() {
		var req domain.ConsultationRequest
		var createdAt int64

		if err := rows.Scan(
			&req.ID, &req.Name, &req.Company, &req.Employees,
			&req.Phone, &req.Email, &req.Requirements, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan consultation request row: %w", err)
		}

		req.CreatedAt = time.Unix(createdAt, 0)
		reqs = append(reqs, &req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consultation requests: %w", err)
	}

	return reqs, nil
}

// GetConversation retrieves conversation state for a user/session.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, sessionID string) (*domain.Conversation, error) {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	query := `
		SELECT user_id, session_id, mode, stage, completion_down,
		       record_json, messages_json, created_at, updated_at
		FROM conversations WHERE user_id = ? AND session_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID, sessionID)

	var conv domain.Conversation
	var mode, stage, recordJSON, messagesJSON string
	var completionDown int
	var createdAt, updatedAt int64

	err := row.Scan(
		&conv.UserID, &conv.SessionID, &mode, &stage, &completionDown,
		&recordJSON, &messagesJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	conv.Mode = domain.Mode(mode)
	conv.Stage = domain.IntakeStage(stage)
	conv.CompletionDown = completionDown != 0
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	if err := json.Unmarshal([]byte(recordJSON), &conv.Record); err != nil {
		return nil, fmt.Errorf("unmarshal conversation record: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal conversation messages: %w", err)
	}

	return &conv, nil
}

// SaveConversation creates or replaces conversation state.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	recordJSON, err := json.Marshal(conv.Record)
	if err != nil {
		return fmt.Errorf("marshal conversation record: %w", err)
	}
	messages := conv.Messages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal conversation messages: %w", err)
	}

	completionDown := 0
	if conv.CompletionDown {
		completionDown = 1
	}

	query := `
		INSERT INTO conversations (
			user_id, session_id, mode, stage, completion_down,
			record_json, messages_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			mode = excluded.mode,
			stage = excluded.stage,
			completion_down = excluded.completion_down,
			record_json = excluded.record_json,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		conv.UserID, conv.SessionID, string(conv.Mode), string(conv.Stage), completionDown,
		string(recordJSON), string(messagesJSON),
		conv.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes conversation state.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, sessionID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteConversationOnce(ctx, userID, sessionID)
		if err == nil {
			return nil
		}

		if isSQLiteConflictError(err) {
			if i < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
				slog.Debug("DeleteConversation failed with SQLITE_BUSY, retrying",
					"user_id", userID,
					"session_id", sessionID,
					"attempt", i+1,
					"delay", delay)
				time.Sleep(delay)
				continue
			}
		}

		// Non-retryable error or max retries exceeded
		return fmt.Errorf("failed to delete conversation for %s:%s after %d attempts: %w", userID, sessionID, maxRetries, err)
	}

	return nil
}

// deleteConversationOnce performs a single delete attempt.
func (s *SQLiteStore) deleteConversationOnce(ctx context.Context, userID, sessionID string) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	query := `DELETE FROM conversations WHERE user_id = ? AND session_id = ?`
	_, err := s.db.ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CleanupExpiredConversations removes conversations idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `DELETE FROM conversations WHERE updated_at < ?`
	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
