package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avdeyev/consultdesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

func testRouter(t *testing.T, ctl *Controller) http.Handler {
	t.Helper()

	h := NewHandler(ctl, NewNoopConversationLogger(), nil)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithIdentity(req.Context(), "anon_00000000000000000000000000000001", "tab-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func TestHandleMessageSuccess(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []string{"We can help with that."}}
	ctl, _, _ := newTestController(completer)
	router := testRouter(t, ctl)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got MessageReply
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if got.Reply != "We can help with that." {
		t.Fatalf("unexpected reply: %q", got.Reply)
	}
}

func TestHandleMessageRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	ctl, _, _ := newTestController(&scriptedCompleter{replies: []string{"x"}})
	router := testRouter(t, ctl)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":""}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleMessageUnavailable(t *testing.T) {
	t.Parallel()

	ctl, _, _ := newTestController(nil)
	router := testRouter(t, ctl)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleMessageConflictWhileInFlight(t *testing.T) {
	t.Parallel()

	completer := &blockingCompleter{
		started: make(chan struct{}),
		release: make(chan struct{}),
		reply:   "done",
	}
	ctl, _, _ := newTestController(completer)
	router := testRouter(t, ctl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"slow"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}()

	<-completer.started
	req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"fast"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	close(completer.release)
	<-done
}

func TestHandleMessageRateLimited(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []string{"ok"}}
	ctl, _, _ := newTestController(completer)
	router := testRouter(t, ctl)

	var last int
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"hi"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting the window, got %d", last)
	}
}

func TestHandleHistoryAndReset(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []string{"reply"}}
	ctl, _, _ := newTestController(completer)
	router := testRouter(t, ctl)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/", strings.NewReader(`{"message":"hi"}`))
	router.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var hist struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&hist); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist.Messages))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chat/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	var after struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&after); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(after.Messages) != 0 {
		t.Fatalf("expected empty history after reset, got %d", len(after.Messages))
	}
}

func TestWriteTurnErrorMapsUnknown(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, NewNoopConversationLogger(), nil)
	t.Cleanup(h.Close)

	w := httptest.NewRecorder()
	h.writeTurnError(w, "u1", "s1", errors.New("boom"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
