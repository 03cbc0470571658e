package hitl

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/agents"
	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/types"
)

// Decision classifies a user reply to a permission request.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionDenied    Decision = "denied"
	DecisionAmbiguous Decision = "ambiguous"
)

var (
	approvalKeywords = []string{"yes", "y", "ok", "okay", "sure", "proceed", "approved", "approve", "allow"}
	denialKeywords   = []string{"no", "n", "deny", "decline", "cancel", "stop"}
)

// ClassifyResponse matches the reply against the fixed keyword sets,
// case-insensitive, on word boundaries. A reply hitting both sets (or
// neither) is ambiguous.
func ClassifyResponse(text string) Decision {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	var approved, denied bool
	for _, w := range words {
		w = strings.Trim(w, ".,!?:;\"'")
		for _, kw := range approvalKeywords {
			if w == kw {
				approved = true
			}
		}
		for _, kw := range denialKeywords {
			if w == kw {
				denied = true
			}
		}
	}
	switch {
	case approved && !denied:
		return DecisionApproved
	case denied && !approved:
		return DecisionDenied
	default:
		return DecisionAmbiguous
	}
}

// Interrupt describes a pending permission request for presentation.
type Interrupt struct {
	ThreadID string                  `json:"thread_id"`
	Agent    string                  `json:"agent"`
	Request  types.PermissionRequest `json:"request"`
	Message  string                  `json:"message"`
}

// Outcome is the result of handling a permission response.
type Outcome struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

// Handler mediates permission interrupts between suspended workflows and the
// user. At most one permission is pending per thread; a second interrupt
// before resolution is rejected by the workflow runner.
type Handler struct {
	checkpoints *checkpoint.Manager
	registry    *agents.Registry
	logger      *zap.Logger
}

// NewHandler creates a permission handler.
func NewHandler(checkpoints *checkpoint.Manager, registry *agents.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		checkpoints: checkpoints,
		registry:    registry,
		logger:      logger.With(zap.String("component", "permission_handler")),
	}
}

// HandleInterrupt reads the thread's suspended state and formats its
// permission request. The message is extracted in layers because different
// agents populate different fields: an explicit message field first, then
// the pending operation's summary, then a scan of recent assistant turns.
func (h *Handler) HandleInterrupt(ctx context.Context, threadID string) (*Interrupt, error) {
	cp, err := h.checkpoints.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, types.NewError(types.ErrNoPendingPermission, "no pending permission request found")
		}
		return nil, err
	}
	if cp.ResumeNode == "" || cp.State == nil {
		return nil, types.NewError(types.ErrNoPendingPermission, "no pending permission request found")
	}

	state := cp.State
	op := state.FirstPendingPermission()

	req := types.PermissionRequest{Type: types.PermissionWebSearch}
	if op != nil {
		req.Type = types.PermissionType(op.Type)
		req.Justification = op.Summary
	}

	return &Interrupt{
		ThreadID: threadID,
		Agent:    cp.Agent,
		Request:  req,
		Message:  extractMessage(state, op),
	}, nil
}

// HandleResponse classifies the user's reply and resumes or terminates the
// suspended workflow. An ambiguous reply re-prompts without touching state.
func (h *Handler) HandleResponse(ctx context.Context, threadID, userText string) (*Outcome, error) {
	decision := ClassifyResponse(userText)
	if decision == DecisionAmbiguous {
		return &Outcome{
			Type:    "clarification_needed",
			Status:  "awaiting_decision",
			Message: "I didn't catch that. Please reply with yes or no.",
		}, nil
	}

	cp, err := h.checkpoints.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, types.NewError(types.ErrNoPendingPermission, "no pending permission request found")
		}
		return nil, err
	}
	if cp.ResumeNode == "" {
		return nil, types.NewError(types.ErrNoPendingPermission, "no pending permission request found")
	}

	agent, err := h.registry.Get(cp.Agent)
	if err != nil {
		return nil, err
	}

	approved := decision == DecisionApproved
	res, err := agent.Resume(ctx, threadID, approved)
	if err != nil {
		return nil, err
	}

	h.logger.Info("permission decision applied",
		zap.String("thread_id", threadID),
		zap.String("agent", cp.Agent),
		zap.Bool("approved", approved))

	if !approved {
		return &Outcome{
			Type:     "permission_denied",
			Status:   "completed",
			Response: res.State.Response,
		}, nil
	}
	return &Outcome{
		Type:     "permission_granted",
		Status:   string(res.State.TaskStatus),
		Response: res.State.Response,
	}, nil
}

// permission-phrase markers used by the heuristic scan.
var permissionPhrases = []string{"permission request", "reply with yes or no", "need permission"}

// extractMessage finds the best human-readable permission prompt. The
// operation's summary outranks the message scan: the scan is a heuristic and
// only runs when no structured field is populated.
func extractMessage(state *types.ConversationState, op *types.PendingOperation) string {
	if msg, ok := state.Extra["permission_message"].(string); ok && msg != "" {
		return msg
	}

	if op != nil && op.Summary != "" {
		return "Permission needed: " + op.Summary + ". Reply with yes or no."
	}

	for i := len(state.Messages) - 1; i >= 0 && i >= len(state.Messages)-3; i-- {
		m := state.Messages[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		lower := strings.ToLower(m.Content)
		for _, phrase := range permissionPhrases {
			if strings.Contains(lower, phrase) {
				return m.Content
			}
		}
	}
	return "An action needs your approval. Reply with yes or no."
}
