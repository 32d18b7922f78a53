package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avdeyev/consultdesk/internal/api"
	"github.com/avdeyev/consultdesk/internal/config"
	"github.com/avdeyev/consultdesk/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler exposes the conversational intake controller over HTTP.
type Handler struct {
	ctl         *Controller
	rateLimiter *RateLimiter
	log         ConversationLogger
}

// NewHandler creates a chat HTTP handler.
func NewHandler(ctl *Controller, conversationLogger ConversationLogger, cfg *config.Config) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}

	rateLimitRequests := 20
	rateLimitWindow := time.Minute
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
	}

	return &Handler{
		ctl:         ctl,
		rateLimiter: NewRateLimiter(rateLimitRequests, rateLimitWindow),
		log:         conversationLogger,
	}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.HandleMessage)
		r.Get("/history", h.HandleHistory)
		r.Delete("/", h.HandleReset)
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	if h.log != nil {
		if err := h.log.Close(); err != nil {
			slog.Warn("failed to close conversation logger", "error", err)
		}
	}
}

// HandleMessage handles POST /api/chat requests: one user turn in, one
// assistant reply out.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())

	slog.Info("Chat message received",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
	)
	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Meta: map[string]any{
			"request_id": reqID,
		},
	})

	reply, err := h.ctl.Turn(r.Context(), userID, sessionID, req.Message)
	if err != nil {
		h.writeTurnError(w, userID, sessionID, err)
		return
	}

	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Reply,
		Meta: map[string]any{
			"request_id": reqID,
			"mode":       string(reply.Mode),
			"stage":      string(reply.Stage),
		},
	})

	api.JSON(w, http.StatusOK, reply)
}

func (h *Handler) writeTurnError(w http.ResponseWriter, userID, sessionID string, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		api.Error(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, ErrTurnInFlight):
		api.Error(w, http.StatusConflict, "a reply is already in progress")
	case errors.Is(err, ErrCompletionUnavailable):
		api.Error(w, http.StatusServiceUnavailable, "assistant is unavailable")
	default:
		slog.Error("Chat turn failed", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// HandleHistory handles GET /api/chat/history requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	messages, err := h.ctl.History(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load chat history", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// HandleReset handles DELETE /api/chat requests.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.ctl.Reset(r.Context(), userID, sessionID); err != nil {
		slog.Error("Failed to reset conversation", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
