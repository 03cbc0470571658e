package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/hitl"
	"github.com/corvid-labs/agentchain/types"
)

// PermissionMetrics records HITL decisions.
type PermissionMetrics interface {
	PermissionDecision(decision string)
}

// PermissionHandler exposes the HITL flow over HTTP.
type PermissionHandler struct {
	hitl    *hitl.Handler
	metrics PermissionMetrics
	logger  *zap.Logger
}

// NewPermissionHandler creates a permission handler. metrics may be nil.
func NewPermissionHandler(h *hitl.Handler, metrics PermissionMetrics, logger *zap.Logger) *PermissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionHandler{hitl: h, metrics: metrics, logger: logger.With(zap.String("component", "permission_handler"))}
}

// HandlePending returns the thread's pending permission request.
// GET /v1/permissions?thread_id=...
func (h *PermissionHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "thread_id is required"), h.logger)
		return
	}
	interrupt, err := h.hitl.HandleInterrupt(r.Context(), threadID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, interrupt)
}

// respondRequest is the user's permission decision.
type respondRequest struct {
	ThreadID string `json:"thread_id"`
	Response string `json:"response"`
}

// HandleRespond applies the user's reply to a pending permission request.
// POST /v1/permissions/respond
func (h *PermissionHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if req.ThreadID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "thread_id is required"), h.logger)
		return
	}

	outcome, err := h.hitl.HandleResponse(r.Context(), req.ThreadID, req.Response)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if h.metrics != nil && outcome.Type != "clarification_needed" {
		h.metrics.PermissionDecision(outcome.Type)
	}
	WriteSuccess(w, outcome)
}
