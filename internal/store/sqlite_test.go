package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestSaveAndListConsultationRequests(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"Alice", "Bob", "Carol"} {
		req := &domain.ConsultationRequest{
			ID:           "req-" + name,
			Name:         name,
			Company:      "Acme",
			Employees:    "12",
			Phone:        "555-1234",
			Email:        "x@acme.com",
			Requirements: "backups",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveConsultationRequest(ctx, req); err != nil {
			t.Fatalf("SaveConsultationRequest failed: %v", err)
		}
	}

	reqs, err := repo.ListConsultationRequests(ctx, 0)
	if err != nil {
		t.Fatalf("ListConsultationRequests failed: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	// Newest first.
	if reqs[0].Name != "Carol" || reqs[2].Name != "Alice" {
		t.Fatalf("unexpected ordering: %s, %s, %s", reqs[0].Name, reqs[1].Name, reqs[2].Name)
	}

	limited, err := repo.ListConsultationRequests(ctx, 2)
	if err != nil {
		t.Fatalf("ListConsultationRequests with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 requests with limit, got %d", len(limited))
	}

	got := reqs[0]
	if got.Company != "Acme" || got.Employees != "12" || got.Phone != "555-1234" ||
		got.Email != "x@acme.com" || got.Requirements != "backups" {
		t.Fatalf("record fields did not round-trip: %+v", got)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	missing, err := repo.GetConversation(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing conversation")
	}

	conv := domain.NewConversation("u1", "s1")
	conv.Mode = domain.ModeIntake
	conv.Stage = domain.StageEmail
	conv.CompletionDown = true
	conv.Record.Name = "Alice"
	conv.Record.Company = "Acme"
	conv.Append(domain.RoleUser, "hello")
	conv.Append(domain.RoleAssistant, "hi there")

	if err := repo.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	got, err := repo.GetConversation(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.Mode != domain.ModeIntake || got.Stage != domain.StageEmail {
		t.Fatalf("mode/stage did not round-trip: %q/%q", got.Mode, got.Stage)
	}
	if !got.CompletionDown {
		t.Fatal("completion_down flag did not round-trip")
	}
	if got.Record.Name != "Alice" || got.Record.Company != "Acme" {
		t.Fatalf("record did not round-trip: %+v", got.Record)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "hello" {
		t.Fatalf("messages did not round-trip: %+v", got.Messages)
	}

	// Upsert replaces in place.
	conv.Stage = domain.StageRequirements
	conv.Append(domain.RoleUser, "a@acme.com")
	if err := repo.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation upsert failed: %v", err)
	}
	got, err = repo.GetConversation(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Stage != domain.StageRequirements || len(got.Messages) != 3 {
		t.Fatalf("upsert did not replace state: %q %d", got.Stage, len(got.Messages))
	}
}

func TestDeleteConversation(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	conv := domain.NewConversation("u1", "s1")
	conv.Append(domain.RoleUser, "hello")
	if err := repo.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := repo.DeleteConversation(ctx, "u1", "s1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	got, err := repo.GetConversation(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected conversation to be deleted")
	}

	// Deleting a missing conversation is not an error.
	if err := repo.DeleteConversation(ctx, "u1", "s1"); err != nil {
		t.Fatalf("DeleteConversation of missing row failed: %v", err)
	}
}

func TestCleanupExpiredConversations(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	conv := domain.NewConversation("u1", "s1")
	if err := repo.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// Nothing is older than an hour.
	deleted, err := repo.CleanupExpiredConversations(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted, got %d", deleted)
	}

	// With a negative ttl the threshold is in the future, so the fresh row
	// is considered idle.
	deleted, err = repo.CleanupExpiredConversations(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredConversations failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}
