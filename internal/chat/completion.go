package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/avdeyev/consultdesk/internal/config"
	"github.com/avdeyev/consultdesk/internal/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var errEmptyCompletion = errors.New("completion returned no choices")

// Completer is the boundary to the external completion collaborator.
// The controller supplies the projected message history on every call and
// expects a single text reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []domain.ChatMessage) (string, error)
}

// HistoryPolicy decides how much of the message log is replayed per
// completion call. The default replays everything, matching the deployed
// widget; unbounded growth is accepted as-is.
type HistoryPolicy interface {
	Project(log []domain.ChatMessage) []domain.ChatMessage
}

type replayAll struct{}

func (replayAll) Project(log []domain.ChatMessage) []domain.ChatMessage { return log }

type lastN struct{ n int }

func (p lastN) Project(log []domain.ChatMessage) []domain.ChatMessage {
	if len(log) <= p.n {
		return log
	}
	return log[len(log)-p.n:]
}

// PolicyFromLimit maps a configured history limit onto a HistoryPolicy:
// -1 replays everything, 0 sends no history, positive keeps the last N.
func PolicyFromLimit(limit int) HistoryPolicy {
	if limit < 0 {
		return replayAll{}
	}
	return lastN{n: limit}
}

// OpenAIClient implements Completer against an OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a completion client from configuration.
func NewOpenAIClient(cfg config.CompletionConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIClient{
		client: &client,
		model:  cfg.Model,
	}
}

// Complete sends the system prompt plus the projected history, oldest-first,
// and returns the assistant's reply text.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, history []domain.ChatMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))

	for _, msg := range history {
		switch msg.Role {
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
