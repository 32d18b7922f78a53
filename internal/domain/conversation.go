package domain

import (
	"time"
)

// Mode is the two-state conversation flag. A conversation starts in free chat,
// flips to structured intake only via the trigger-phrase rule, and reverts to
// free chat the moment the intake cursor passes the last field.
type Mode string

const (
	ModeFreeChat Mode = "free_chat"
	ModeIntake   Mode = "intake"
)

// IntakeStage identifies the active intake field, or StageNone when intake is
// not running. The cursor only ever advances forward through the fixed order
// name → company → employees → phone → email → requirements → none; it is
// never reset backward within a single intake pass.
type IntakeStage string

const (
	StageNone         IntakeStage = ""
	StageName         IntakeStage = "name"
	StageCompany      IntakeStage = "company"
	StageEmployees    IntakeStage = "employees"
	StagePhone        IntakeStage = "phone"
	StageEmail        IntakeStage = "email"
	StageRequirements IntakeStage = "requirements"
)

// IntakeOrder is the fixed traversal order of one intake pass.
var IntakeOrder = []IntakeStage{
	StageName,
	StageCompany,
	StageEmployees,
	StagePhone,
	StageEmail,
	StageRequirements,
}

// NextStage returns the stage that follows s in the fixed order, or StageNone
// after the last field.
func NextStage(s IntakeStage) IntakeStage {
	for i, stage := range IntakeOrder {
		if stage == s {
			if i+1 < len(IntakeOrder) {
				return IntakeOrder[i+1]
			}
			return StageNone
		}
	}
	return StageNone
}

// Conversation holds the per-visitor, per-tab chat state: the append-only
// message log, the mode flag, the intake cursor, and the record being filled.
type Conversation struct {
	UserID    string              `json:"user_id"`
	SessionID string              `json:"session_id"`
	Mode      Mode                `json:"mode"`
	Stage     IntakeStage         `json:"stage"`
	Record    ConsultationRequest `json:"record"`
	Messages  []ChatMessage       `json:"messages"`
	// CompletionDown is the sticky unavailable flag: once a completion call
	// fails, further free-chat turns are refused for this conversation.
	// Intake turns keep working since they never touch the completion API.
	CompletionDown bool      `json:"completion_down"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewConversation returns a fresh free-chat conversation.
func NewConversation(userID, sessionID string) *Conversation {
	now := time.Now()
	return &Conversation{
		UserID:    userID,
		SessionID: sessionID,
		Mode:      ModeFreeChat,
		Stage:     StageNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds one message to the log. The log is append-only.
func (c *Conversation) Append(role Role, content string) {
	c.Messages = append(c.Messages, ChatMessage{Role: role, Content: content})
}

// SetField stores input verbatim under the given intake stage.
func (c *Conversation) SetField(stage IntakeStage, value string) {
	switch stage {
	case StageName:
		c.Record.Name = value
	case StageCompany:
		c.Record.Company = value
	case StageEmployees:
		c.Record.Employees = value
	case StagePhone:
		c.Record.Phone = value
	case StageEmail:
		c.Record.Email = value
	case StageRequirements:
		c.Record.Requirements = value
	}
}
