package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the unauthenticated liveness endpoint that load
// balancers and uptime checks probe.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck reports that the process is up. It deliberately does not touch
// postgres or redis; a degraded backend still answers here.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "predictd",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
