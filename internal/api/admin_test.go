package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avdeyev/consultdesk/internal/domain"
	"github.com/go-chi/chi/v5"
)

// fakeRepo is a minimal in-memory Repository.
type fakeRepo struct {
	requests []*domain.ConsultationRequest
	pingErr  error
}

func (r *fakeRepo) GetConversation(context.Context, string, string) (*domain.Conversation, error) {
	return nil, nil
}
func (r *fakeRepo) SaveConversation(context.Context, *domain.Conversation) error { return nil }
func (r *fakeRepo) DeleteConversation(context.Context, string, string) error     { return nil }

func (r *fakeRepo) SaveConsultationRequest(_ context.Context, req *domain.ConsultationRequest) error {
	r.requests = append(r.requests, req)
	return nil
}

func (r *fakeRepo) ListConsultationRequests(_ context.Context, limit int) ([]*domain.ConsultationRequest, error) {
	if limit > 0 && limit < len(r.requests) {
		return r.requests[:limit], nil
	}
	return r.requests, nil
}

func (r *fakeRepo) CleanupExpiredConversations(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
func (r *fakeRepo) Ping(context.Context) error { return r.pingErr }
func (r *fakeRepo) Close() error               { return nil }

func adminRouter(repo *fakeRepo, key string) http.Handler {
	r := chi.NewRouter()
	NewAdminHandler(repo, key).RegisterRoutes(r)
	return r
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	t.Parallel()

	router := adminRouter(&fakeRepo{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/requests", nil)
	req.Header.Set("X-Admin-Access-Key", "anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when disabled, got %d", w.Code)
	}
}

func TestAdminRejectsWrongKey(t *testing.T) {
	t.Parallel()

	router := adminRouter(&fakeRepo{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/requests", nil)
	req.Header.Set("X-Admin-Access-Key", "not-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminListsRequests(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{requests: []*domain.ConsultationRequest{
		{ID: "r1", Name: "Alice", Company: "Acme"},
		{ID: "r2", Name: "Bob", Company: "Globex"},
	}}
	router := adminRouter(repo, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/requests", nil)
	req.Header.Set("X-Admin-Access-Key", "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		Requests []*domain.ConsultationRequest `json:"requests"`
		Count    int                           `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Count != 2 || len(got.Requests) != 2 {
		t.Fatalf("expected 2 requests, got count=%d len=%d", got.Count, len(got.Requests))
	}
}

func TestAdminRejectsInvalidLimit(t *testing.T) {
	t.Parallel()

	router := adminRouter(&fakeRepo{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/requests?limit=abc", nil)
	req.Header.Set("X-Admin-Access-Key", "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthReportsDatabaseState(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	NewHealthHandler(&fakeRepo{}, true, func() int { return 3 }).RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", got["status"])
	}
	if got["assistant_enabled"] != true {
		t.Fatalf("expected assistant_enabled true, got %v", got["assistant_enabled"])
	}
	if got["active_connections"] != float64(3) {
		t.Fatalf("expected 3 active connections, got %v", got["active_connections"])
	}

	broken := chi.NewRouter()
	NewHealthHandler(&fakeRepo{pingErr: errors.New("down")}, false, nil).RegisterHealth(broken)
	w = httptest.NewRecorder()
	broken.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when database is down, got %d", w.Code)
	}
}
