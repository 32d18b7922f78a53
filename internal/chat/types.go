// Package chat implements the conversational intake controller: free-form
// assistant chat backed by a completion API, plus the structured six-field
// consultation intake flow.
package chat

import (
	"fmt"
	"strings"

	"github.com/avdeyev/consultdesk/internal/domain"
)

// MessageRequest is the body of a chat submission.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageReply is returned for every completed chat turn.
type MessageReply struct {
	Reply string             `json:"reply"`
	Mode  domain.Mode        `json:"mode"`
	Stage domain.IntakeStage `json:"stage,omitempty"`
}

// systemPrompt is the fixed persona instruction sent on every completion call.
// It is never stored in the visible message log. The wording deliberately
// steers the model toward the two trigger phrases the mode switch matches on.
const systemPrompt = `You are the virtual assistant on the ConsultDesk website. ConsultDesk is an IT services company offering managed infrastructure, cloud migration, cybersecurity, and software development services to small and mid-sized businesses.

Answer visitor questions about our services concisely and professionally. When a visitor expresses interest in booking a consultation, speaking with an expert, or getting a quote, tell them you'd like to collect some basic information to help you schedule a consultation. Do not make up prices or delivery dates.`

// Trigger substrings: when a free-chat completion reply contains either of
// these, the mode switch flips the conversation into structured intake and
// the reply itself is never shown to the visitor. Exact-substring matching
// against the model's wording is fragile but preserved for compatibility
// with the deployed widget.
const (
	triggerCollectInfo  = "collect some basic information"
	triggerScheduleCall = "help you schedule a consultation"
)

func containsTrigger(reply string) bool {
	return strings.Contains(reply, triggerCollectInfo) ||
		strings.Contains(reply, triggerScheduleCall)
}

// intakeIntro prefixes the first intake prompt when the mode switch fires.
const intakeIntro = "I'd be happy to help schedule a consultation with our experts."

// completionApology is appended when a completion call fails mid-conversation.
const completionApology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// stagePrompts holds the canned prompt emitted when entering each intake
// stage. The company prompt is the only one that interpolates a captured
// value; see promptFor.
var stagePrompts = map[domain.IntakeStage]string{
	domain.StageName:         "Could you please share your name?",
	domain.StageCompany:      "Thanks %s! Which company are you with?",
	domain.StageEmployees:    "Approximately how many employees does your company have?",
	domain.StagePhone:        "What's the best phone number to reach you at?",
	domain.StageEmail:        "Could you please share your email address?",
	domain.StageRequirements: "Lastly, could you briefly describe your main IT requirements or challenges?",
}

// promptFor returns the canned prompt for entering the given intake stage.
func promptFor(stage domain.IntakeStage, record *domain.ConsultationRequest) string {
	prompt := stagePrompts[stage]
	if stage == domain.StageCompany {
		return fmt.Sprintf(prompt, record.Name)
	}
	return prompt
}

// summaryBlock formats all six captured fields for the closing message.
func summaryBlock(rec *domain.ConsultationRequest) string {
	var b strings.Builder
	b.WriteString("Here's a summary of your consultation request:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", rec.Name)
	fmt.Fprintf(&b, "Company: %s\n", rec.Company)
	fmt.Fprintf(&b, "Employees: %s\n", rec.Employees)
	fmt.Fprintf(&b, "Phone: %s\n", rec.Phone)
	fmt.Fprintf(&b, "Email: %s\n", rec.Email)
	fmt.Fprintf(&b, "Requirements: %s\n", rec.Requirements)
	return b.String()
}

// successClosing thanks the visitor after the record was stored.
const successClosing = "Thank you! Our experts will review your requirements and reach out within one business day."

// persistApology replaces the success closing when storing the record failed.
func persistApology(fallbackContact string) string {
	return fmt.Sprintf("I'm sorry, something went wrong while submitting your request. Please email us directly at %s and we'll take it from there.", fallbackContact)
}
