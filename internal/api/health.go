package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/avdeyev/consultdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo        store.Repository
	assistantOn bool
	activeConns func() int
}

// NewHealthHandler creates a new health handler. activeConns may be nil.
func NewHealthHandler(repo store.Repository, assistantOn bool, activeConns func() int) *HealthHandler {
	return &HealthHandler{repo: repo, assistantOn: assistantOn, activeConns: activeConns}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":            "healthy",
		"checks":            checks,
		"assistant_enabled": h.assistantOn,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.activeConns != nil {
		status["active_connections"] = h.activeConns()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
