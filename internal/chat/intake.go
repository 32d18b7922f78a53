package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
	"github.com/google/uuid"
)

// intakeTurn consumes one user message into the active intake field and
// advances the cursor. On the last field it persists the completed record
// (exactly once, no retry) and reverts the conversation to free chat.
func (ctl *Controller) intakeTurn(ctx context.Context, conv *domain.Conversation, input string) string {
	stage := conv.Stage
	conv.SetField(stage, input)
	conv.Append(domain.RoleUser, input)

	next := domain.NextStage(stage)
	if next == domain.StageNone {
		reply := ctl.finishIntake(ctx, conv)
		// The pass is over either way: mode reverts to free chat and the
		// record is discarded from further mutation.
		conv.Mode = domain.ModeFreeChat
		conv.Stage = domain.StageNone
		conv.Record = domain.ConsultationRequest{}
		conv.Append(domain.RoleAssistant, reply)
		return reply
	}

	conv.Stage = next
	reply := promptFor(next, &conv.Record)
	conv.Append(domain.RoleAssistant, reply)
	return reply
}

// finishIntake makes the single persistence call for a completed pass and
// formats the closing message. A storage failure downgrades the closing to
// the apology variant; the record is not retried and the visitor must start
// a fresh pass to resubmit.
func (ctl *Controller) finishIntake(ctx context.Context, conv *domain.Conversation) string {
	rec := conv.Record
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()

	if err := ctl.requests.SaveConsultationRequest(ctx, &rec); err != nil {
		slog.Error("Failed to store consultation request",
			"user_id", conv.UserID,
			"session_id", conv.SessionID,
			"error", err,
		)
		return summaryBlock(&rec) + "\n" + persistApology(ctl.fallbackContact)
	}

	slog.Info("Consultation request stored",
		"request_id", rec.ID,
		"user_id", conv.UserID,
		"session_id", conv.SessionID,
		"company", rec.Company,
	)
	return summaryBlock(&rec) + "\n" + successClosing
}
