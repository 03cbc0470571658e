package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/orchestrator"
	"github.com/corvid-labs/agentchain/types"
)

// WorkflowHandler serves template-driven workflow execution.
type WorkflowHandler struct {
	orch    *orchestrator.Orchestrator
	metrics ChainMetrics
	logger  *zap.Logger
}

// NewWorkflowHandler creates a workflow handler. metrics may be nil.
func NewWorkflowHandler(orch *orchestrator.Orchestrator, metrics ChainMetrics, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{orch: orch, metrics: metrics, logger: logger.With(zap.String("component", "workflow_handler"))}
}

// HandleTemplates lists registered templates.
// GET /v1/workflows/templates
func (h *WorkflowHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{"templates": h.orch.Templates()})
}

// HandleAgents lists registered agents.
// GET /v1/agents
func (h *WorkflowHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{"agents": h.orch.Agents()})
}

// HandleExecute runs a template to completion and returns all events.
// POST /v1/workflows/execute
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if req.Template == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "template is required"), h.logger)
		return
	}

	ch, err := h.orch.ExecuteTemplate(r.Context(), req.Template, req.initialState())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var events []orchestrator.Event
	finalStatus := ""
	for e := range ch {
		events = append(events, e)
		if e.Type == orchestrator.EventWorkflowCompleted {
			finalStatus = e.FinalStatus
		}
		if e.Type == orchestrator.EventStreamError {
			finalStatus = "failed"
		}
	}
	h.record(finalStatus)

	WriteSuccess(w, map[string]any{
		"events":       events,
		"final_status": finalStatus,
	})
}

// HandleStream runs a template and forwards events as SSE.
// POST /v1/workflows/stream
func (h *WorkflowHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if req.Template == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "template is required"), h.logger)
		return
	}

	ch, err := h.orch.ExecuteTemplate(r.Context(), req.Template, req.initialState())
	if err != nil {
		// Template resolution failed before the stream opened; answer as JSON.
		WriteError(w, err, h.logger)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported"), h.logger)
		return
	}

	status, err := streamEvents(sse, ch)
	if err != nil {
		h.record("aborted")
		return
	}
	h.record(status)
}

func (h *WorkflowHandler) record(status string) {
	if h.metrics != nil {
		if status == "" {
			status = "failed"
		}
		h.metrics.ChainExecution("workflow", status)
	}
}
