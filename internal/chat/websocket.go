package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avdeyev/consultdesk/internal/identity"
	"github.com/coder/websocket"
)

// WebSocketHandler handles WebSocket-based chat sessions.
type WebSocketHandler struct {
	ctl           *Controller
	sm            *SessionManager
	log           ConversationLogger
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(ctl *Controller, sm *SessionManager, log ConversationLogger, allowedOrigin string, isDev bool) *WebSocketHandler {
	if log == nil {
		log = NewNoopConversationLogger()
	}
	return &WebSocketHandler{
		ctl:           ctl,
		sm:            sm,
		log:           log,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsClientMessage represents an incoming WebSocket frame.
type wsClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsServerMessage represents an outgoing WebSocket frame.
type wsServerMessage struct {
	Type  string `json:"type"`
	Reply string `json:"reply,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Chat socket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("Chat socket session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			if err := h.writeJSON(ws, wsServerMessage{Type: "error", Error: "invalid message"}); err != nil {
				slog.Debug("Failed to send error frame", "error", err)
			}
			continue
		}

		switch msg.Type {
		case "message":
			h.handleMessage(ctx, ws, userID, sessionID, msg.Content)
		case "ping":
			if err := h.writeJSON(ws, wsServerMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "reset":
			if err := h.ctl.Reset(ctx, userID, sessionID); err != nil {
				slog.Warn("Failed to reset conversation", "error", err, "user_id", userID)
				if err := h.writeJSON(ws, wsServerMessage{Type: "error", Error: "reset failed"}); err != nil {
					slog.Debug("Failed to send error frame", "error", err)
				}
				continue
			}
			if err := h.writeJSON(ws, wsServerMessage{Type: "reset_ok"}); err != nil {
				slog.Debug("Failed to send reset acknowledgment", "error", err)
			}
		default:
			if err := h.writeJSON(ws, wsServerMessage{Type: "error", Error: "unknown message type"}); err != nil {
				slog.Debug("Failed to send error frame", "error", err)
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, ws *websocket.Conn, userID, sessionID, content string) {
	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: content,
	})

	turnCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	reply, err := h.ctl.Turn(turnCtx, userID, sessionID, content)
	cancel()
	if err != nil {
		if err := h.writeJSON(ws, wsServerMessage{Type: "error", Error: turnErrorText(err)}); err != nil {
			slog.Debug("Failed to send error frame", "error", err)
		}
		return
	}

	h.log.Log(ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Reply,
		Meta:       map[string]any{"mode": string(reply.Mode), "stage": string(reply.Stage)},
	})

	if err := h.writeJSON(ws, wsServerMessage{
		Type:  "reply",
		Reply: reply.Reply,
		Mode:  string(reply.Mode),
		Stage: string(reply.Stage),
	}); err != nil {
		slog.Debug("Failed to send reply frame", "error", err, "user_id", userID)
	}
}

// turnErrorText maps controller errors to short client-facing strings.
func turnErrorText(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "message is required"
	case errors.Is(err, ErrTurnInFlight):
		return "previous message still processing"
	case errors.Is(err, ErrCompletionUnavailable):
		return "assistant unavailable"
	default:
		return "internal error"
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
