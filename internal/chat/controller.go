package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/avdeyev/consultdesk/internal/domain"
	"github.com/avdeyev/consultdesk/internal/store"
)

var (
	// ErrTurnInFlight is returned when a turn is submitted while a previous
	// turn for the same conversation has not resolved yet. At most one turn
	// may be outstanding per conversation.
	ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

	// ErrCompletionUnavailable is returned for free-chat turns when no
	// completion credential was configured or a previous completion failure
	// set the sticky unavailable flag. Intake turns are never refused for
	// this reason.
	ErrCompletionUnavailable = errors.New("assistant is unavailable")

	// ErrEmptyMessage is returned when the submitted message is empty.
	ErrEmptyMessage = errors.New("message is required")
)

// RequestSaver persists completed intake records.
type RequestSaver interface {
	SaveConsultationRequest(ctx context.Context, req *domain.ConsultationRequest) error
}

// Controller drives one chat turn at a time: it routes each user message to
// either the free-chat completion path or the structured intake flow, owns
// the per-conversation message log, and flips the mode on trigger phrases.
type Controller struct {
	conversations   store.ConversationStore
	requests        RequestSaver
	completer       Completer // nil when no credential is configured
	policy          HistoryPolicy
	fallbackContact string

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewController creates a controller. completer may be nil, in which case
// every free-chat turn short-circuits to the unavailable state.
func NewController(conversations store.ConversationStore, requests RequestSaver, completer Completer, policy HistoryPolicy, fallbackContact string) *Controller {
	if policy == nil {
		policy = replayAll{}
	}
	return &Controller{
		conversations:   conversations,
		requests:        requests,
		completer:       completer,
		policy:          policy,
		fallbackContact: fallbackContact,
		inflight:        make(map[string]struct{}),
	}
}

func conversationKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// acquire marks the conversation as having a turn in flight.
func (ctl *Controller) acquire(key string) bool {
	ctl.inflightMu.Lock()
	defer ctl.inflightMu.Unlock()
	if _, busy := ctl.inflight[key]; busy {
		return false
	}
	ctl.inflight[key] = struct{}{}
	return true
}

func (ctl *Controller) release(key string) {
	ctl.inflightMu.Lock()
	defer ctl.inflightMu.Unlock()
	delete(ctl.inflight, key)
}

// Turn processes one user message and returns the assistant's reply.
// Collaborator failures are absorbed here and converted into user-visible
// replies; only guard violations (empty message, busy conversation,
// unavailable assistant) and storage failures surface as errors.
func (ctl *Controller) Turn(ctx context.Context, userID, sessionID, message string) (*MessageReply, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}

	key := conversationKey(userID, sessionID)
	if !ctl.acquire(key) {
		return nil, ErrTurnInFlight
	}
	defer ctl.release(key)

	conv, err := ctl.conversations.GetConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		conv = domain.NewConversation(userID, sessionID)
	}

	var reply string
	if conv.Mode == domain.ModeIntake && conv.Stage != domain.StageNone {
		reply = ctl.intakeTurn(ctx, conv, message)
	} else {
		reply, err = ctl.freeChatTurn(ctx, conv, message)
		if err != nil {
			return nil, err
		}
	}

	if err := ctl.conversations.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	return &MessageReply{Reply: reply, Mode: conv.Mode, Stage: conv.Stage}, nil
}

// freeChatTurn forwards the full projected history to the completion
// collaborator and applies the trigger-phrase mode switch to its reply.
func (ctl *Controller) freeChatTurn(ctx context.Context, conv *domain.Conversation, message string) (string, error) {
	if ctl.completer == nil || conv.CompletionDown {
		return "", ErrCompletionUnavailable
	}

	conv.Append(domain.RoleUser, message)

	completion, err := ctl.completer.Complete(ctx, systemPrompt, ctl.policy.Project(conv.Messages))
	if err != nil {
		// Absorbed at the turn boundary: the visitor sees a fixed apology
		// and the sticky flag refuses further free-chat turns. Intake keeps
		// working since it never touches the completion API.
		slog.Error("Completion call failed", "user_id", conv.UserID, "session_id", conv.SessionID, "error", err)
		conv.CompletionDown = true
		conv.Append(domain.RoleAssistant, completionApology)
		return completionApology, nil
	}

	if containsTrigger(completion) {
		// The triggering reply is never shown. Intake starts from a fresh
		// record at the first field.
		conv.Mode = domain.ModeIntake
		conv.Stage = domain.StageName
		conv.Record = domain.ConsultationRequest{}
		reply := intakeIntro + " " + promptFor(domain.StageName, &conv.Record)
		conv.Append(domain.RoleAssistant, reply)
		slog.Info("Intake flow started", "user_id", conv.UserID, "session_id", conv.SessionID)
		return reply, nil
	}

	conv.Append(domain.RoleAssistant, completion)
	return completion, nil
}

// History returns the visible message log for a conversation.
func (ctl *Controller) History(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	conv, err := ctl.conversations.GetConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return []domain.ChatMessage{}, nil
	}
	return conv.Messages, nil
}

// Reset discards all conversation state so the next turn starts fresh.
func (ctl *Controller) Reset(ctx context.Context, userID, sessionID string) error {
	if err := ctl.conversations.DeleteConversation(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("reset conversation: %w", err)
	}
	slog.Info("Conversation reset", "user_id", userID, "session_id", sessionID)
	return nil
}
