package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/memory"
	"github.com/corvid-labs/agentchain/types"
)

// MemoryHandler exposes shared-memory status and retention.
type MemoryHandler struct {
	store  *memory.Store
	logger *zap.Logger
}

// NewMemoryHandler creates a memory handler.
func NewMemoryHandler(store *memory.Store, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{store: store, logger: logger.With(zap.String("component", "memory_handler"))}
}

// HandleMetrics reports aggregate workflow performance.
// GET /v1/memory/metrics
func (h *MemoryHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.store.PerformanceMetrics())
}

// HandleHistory returns completed-run history for a thread.
// GET /v1/memory/history?thread_id=...
func (h *MemoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "thread_id is required"), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"history": h.store.History(threadID)})
}

// cleanupRequest bounds the retention pass.
type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// HandleCleanup removes stale active-workflow entries.
// POST /v1/memory/cleanup
func (h *MemoryHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if req.MaxAgeHours <= 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "max_age_hours must be positive"), h.logger)
		return
	}
	removed := h.store.CleanupCompletedWorkflows(time.Duration(req.MaxAgeHours) * time.Hour)
	WriteSuccess(w, map[string]any{"removed": removed})
}
