package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/avdeyev/consultdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultAdminListLimit = 100

// AdminHandler exposes consultation request listings for back-office use.
// All routes require the configured access key; with no key configured the
// routes respond 404 so the surface stays invisible.
type AdminHandler struct {
	repo      store.Repository
	accessKey string
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(repo store.Repository, accessKey string) *AdminHandler {
	return &AdminHandler{repo: repo, accessKey: accessKey}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireAccessKey)
		r.Get("/requests", h.ListRequests)
	})
}

func (h *AdminHandler) requireAccessKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.accessKey == "" {
			http.NotFound(w, r)
			return
		}
		key := r.Header.Get("X-Admin-Access-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.accessKey)) != 1 {
			slog.Warn("Admin access denied", "ip", r.RemoteAddr)
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListRequests returns stored consultation requests, newest first.
func (h *AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit := defaultAdminListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	requests, err := h.repo.ListConsultationRequests(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list consultation requests", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list requests")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}
