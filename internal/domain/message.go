// Package domain contains core domain types for the ConsultDesk chat service.
package domain

// Role tags a chat message as user- or assistant-authored.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a conversation's append-only message log.
// Messages are never mutated or deleted; insertion order is the conversation
// order and is replayed verbatim to the completion API.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
