package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/orchestrator"
	"github.com/corvid-labs/agentchain/types"
)

// ExecuteRequest starts a chain or a workflow template for a conversation.
type ExecuteRequest struct {
	Agents         []string `json:"agents,omitempty"`
	Template       string   `json:"template,omitempty"`
	UserID         string   `json:"user_id"`
	ConversationID string   `json:"conversation_id"`
	SessionID      string   `json:"session_id,omitempty"`
	Query          string   `json:"query"`
}

func (r *ExecuteRequest) validate() error {
	if r.UserID == "" || r.ConversationID == "" {
		return types.NewError(types.ErrInvalidRequest, "user_id and conversation_id are required")
	}
	if r.Query == "" {
		return types.NewError(types.ErrInvalidRequest, "query is required")
	}
	return nil
}

func (r *ExecuteRequest) initialState() *types.ConversationState {
	state := types.NewConversationState(r.UserID, r.ConversationID, r.Query)
	state.SessionID = r.SessionID
	state.Messages = []types.Message{types.NewUserMessage(r.Query)}
	return state
}

// ChainMetrics is the metrics surface the handlers record to.
type ChainMetrics interface {
	ChainExecution(kind, status string)
}

// ChainHandler serves chain execution.
type ChainHandler struct {
	orch    *orchestrator.Orchestrator
	metrics ChainMetrics
	logger  *zap.Logger
}

// NewChainHandler creates a chain handler. metrics may be nil.
func NewChainHandler(orch *orchestrator.Orchestrator, metrics ChainMetrics, logger *zap.Logger) *ChainHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainHandler{orch: orch, metrics: metrics, logger: logger.With(zap.String("component", "chain_handler"))}
}

// HandleExecute runs a chain to completion and returns all events at once.
// POST /v1/chains/execute
func (h *ChainHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	events := make([]orchestrator.Event, 0, len(req.Agents)+2)
	final := ""
	status := "completed"
	for e := range h.orch.ExecuteChain(r.Context(), req.Agents, req.initialState()) {
		events = append(events, e)
		switch e.Type {
		case orchestrator.EventChainCompleted:
			final = e.FinalResponse
		case orchestrator.EventStreamError:
			status = "failed"
		}
	}
	h.recordChain(status)

	WriteSuccess(w, map[string]any{
		"events":         events,
		"final_response": final,
		"status":         status,
	})
}

// HandleStream runs a chain and forwards events as SSE in execution order.
// POST /v1/chains/stream
func (h *ChainHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported"), h.logger)
		return
	}

	status, err := streamEvents(sse, h.orch.ExecuteChain(r.Context(), req.Agents, req.initialState()))
	if err != nil {
		h.logger.Debug("client went away mid-stream", zap.Error(err))
		h.recordChain("aborted")
		return
	}
	h.recordChain(status)
}

func (h *ChainHandler) recordChain(status string) {
	if h.metrics != nil {
		h.metrics.ChainExecution("chain", status)
	}
}
