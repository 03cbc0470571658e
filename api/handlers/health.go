package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ComponentPing checks one dependency's liveness.
type ComponentPing func(ctx context.Context) error

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	version string
	pings   map[string]ComponentPing
	logger  *zap.Logger
}

// NewHealthHandler creates a health handler with optional dependency pings.
func NewHealthHandler(version string, pings map[string]ComponentPing, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{version: version, pings: pings, logger: logger}
}

// HandleHealth answers liveness and per-component status.
// GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.pings))
	healthy := true
	for name, ping := range h.pings {
		if err := ping(ctx); err != nil {
			components[name] = "down: " + err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	WriteJSON(w, status, map[string]any{
		"status":     overall,
		"version":    h.version,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
