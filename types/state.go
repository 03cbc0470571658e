package types

import "time"

// TaskStatus describes where a workflow invocation stands.
type TaskStatus string

const (
	StatusProcessing         TaskStatus = "processing"
	StatusComplete           TaskStatus = "complete"
	StatusIncomplete         TaskStatus = "incomplete"
	StatusPermissionRequired TaskStatus = "permission_required"
	StatusError              TaskStatus = "error"
)

// Terminal reports whether the status ends the current invocation.
func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// PermissionType classifies the external action an agent wants approval for.
type PermissionType string

const (
	PermissionWebSearch  PermissionType = "web_search"
	PermissionFileAccess PermissionType = "file_access"
	PermissionAPICall    PermissionType = "api_call"
)

// PermissionRequest is created by an agent node when an external action
// requires user approval. It is one-shot: the permission handler transitions
// it to granted or denied and never mutates it afterwards.
type PermissionRequest struct {
	Type          PermissionType `json:"permission_type"`
	Justification string         `json:"justification"`
	Scope         string         `json:"scope,omitempty"`
	Urgency       string         `json:"urgency,omitempty"`
}

// OperationStatus is the lifecycle of a pending operation.
type OperationStatus string

const (
	OperationPending  OperationStatus = "pending"
	OperationResolved OperationStatus = "resolved"
)

// PendingOperation is an operation awaiting user approval. Only the
// permission handler resolves it, upon receiving a matching response.
type PendingOperation struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Summary            string          `json:"summary"`
	PermissionRequired bool            `json:"permission_required"`
	Status             OperationStatus `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}

// FailedOperation records a node failure in shared memory.
type FailedOperation struct {
	Agent     string    `json:"agent"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Shared-memory keys with engine-defined semantics. List-valued keys are
// append-only: node updates add entries, they never replace the list.
const (
	MemResearchFindings = "research_findings"
	MemPermissionGrants = "permission_grants"
	MemAgentHandoffs    = "agent_handoffs"
	MemProjectDecisions = "project_decisions"
	MemFailedOperations = "failed_operations"
	MemLockedAgent      = "locked_agent"
)

// appendOnlyMemKeys lists the shared-memory keys whose values merge by append.
var appendOnlyMemKeys = map[string]bool{
	MemPermissionGrants: true,
	MemAgentHandoffs:    true,
	MemProjectDecisions: true,
	MemFailedOperations: true,
}

// IsAppendOnlyMemKey reports whether a shared-memory key merges by append.
func IsAppendOnlyMemKey(key string) bool {
	return appendOnlyMemKeys[key]
}

// ConversationState is the complete state threaded through one workflow
// execution. Between invocations it lives in the checkpoint store; during an
// invocation it is exclusively owned by the running workflow.
type ConversationState struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id,omitempty"`

	Messages          []Message          `json:"messages"`
	SharedMemory      map[string]any     `json:"shared_memory"`
	TaskStatus        TaskStatus         `json:"task_status"`
	PendingOperations []PendingOperation `json:"pending_operations,omitempty"`

	// Response holds the agent's final answer for this invocation.
	Response string `json:"response,omitempty"`

	// ModelCalls and ToolCalls are counters maintained by the call-limit
	// middleware nodes.
	ModelCalls int `json:"model_calls,omitempty"`
	ToolCalls  int `json:"tool_calls,omitempty"`

	// Extra carries agent-specific scratch fields (e.g. "word" for a
	// dictionary agent). Owned exclusively by the agent that sets them.
	Extra map[string]any `json:"extra,omitempty"`
}

// NewConversationState builds an initial state for one invocation.
func NewConversationState(userID, conversationID, query string) *ConversationState {
	return &ConversationState{
		Query:          query,
		UserID:         userID,
		ConversationID: conversationID,
		SharedMemory:   make(map[string]any),
		TaskStatus:     StatusProcessing,
		Extra:          make(map[string]any),
	}
}

// ThreadID returns the checkpoint thread key. User ID is part of the key so
// two users sharing a conversation ID can never collide.
func (s *ConversationState) ThreadID() string {
	return s.UserID + ":" + s.ConversationID
}

// Clone returns a copy safe to hand to the checkpoint store. Slices are
// copied; map values are copied one level deep.
func (s *ConversationState) Clone() *ConversationState {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.PendingOperations = append([]PendingOperation(nil), s.PendingOperations...)
	c.SharedMemory = cloneAnyMap(s.SharedMemory)
	c.Extra = cloneAnyMap(s.Extra)
	return &c
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if list, ok := v.([]any); ok {
			out[k] = append([]any(nil), list...)
			continue
		}
		out[k] = v
	}
	return out
}

// StateUpdate is the partial update a workflow node returns. Updates are
// shallow-merged into the state: list-valued fields append, scalar fields are
// last-write-wins when set, map fields merge by key.
type StateUpdate struct {
	Messages          []Message          `json:"messages,omitempty"`
	// CompactedMessages, when non-nil, replaces the full message history.
	// Only the summarization node sets it; everything else appends via
	// Messages. This is the single sanctioned exception to append-only.
	CompactedMessages []Message          `json:"compacted_messages,omitempty"`
	SharedMemory      map[string]any     `json:"shared_memory,omitempty"`
	TaskStatus        TaskStatus         `json:"task_status,omitempty"`
	PendingOperations []PendingOperation `json:"pending_operations,omitempty"`
	Response          string             `json:"response,omitempty"`
	ModelCallDelta    int                `json:"model_call_delta,omitempty"`
	ToolCallDelta     int                `json:"tool_call_delta,omitempty"`
	Extra             map[string]any     `json:"extra,omitempty"`
}

// Apply merges the update into the state. This is the central merge invariant:
// Messages and PendingOperations always append, and append-only shared-memory
// keys grow monotonically, so history is never silently truncated.
func (s *ConversationState) Apply(u *StateUpdate) {
	if u == nil {
		return
	}
	if u.CompactedMessages != nil {
		s.Messages = append([]Message(nil), u.CompactedMessages...)
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.PendingOperations = append(s.PendingOperations, u.PendingOperations...)

	if u.SharedMemory != nil {
		if s.SharedMemory == nil {
			s.SharedMemory = make(map[string]any, len(u.SharedMemory))
		}
		for k, v := range u.SharedMemory {
			if IsAppendOnlyMemKey(k) {
				s.SharedMemory[k] = appendMemValue(s.SharedMemory[k], v)
				continue
			}
			s.SharedMemory[k] = v
		}
	}
	if u.Extra != nil {
		if s.Extra == nil {
			s.Extra = make(map[string]any, len(u.Extra))
		}
		for k, v := range u.Extra {
			s.Extra[k] = v
		}
	}

	if u.TaskStatus != "" {
		s.TaskStatus = u.TaskStatus
	}
	if u.Response != "" {
		s.Response = u.Response
	}
	s.ModelCalls += u.ModelCallDelta
	s.ToolCalls += u.ToolCallDelta
}

// appendMemValue appends an update onto an append-only shared-memory value.
// Both sides normalize to []any; a scalar update appends as one element.
func appendMemValue(current, update any) any {
	list := toAnyList(current)
	return append(list, toAnyList(update)...)
}

func toAnyList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// MemList reads a shared-memory key as a list, normalizing scalars.
func (s *ConversationState) MemList(key string) []any {
	if s.SharedMemory == nil {
		return nil
	}
	return toAnyList(s.SharedMemory[key])
}

// FirstPendingPermission returns the oldest unresolved operation that needs
// approval, or nil.
func (s *ConversationState) FirstPendingPermission() *PendingOperation {
	for i := range s.PendingOperations {
		op := &s.PendingOperations[i]
		if op.PermissionRequired && op.Status == OperationPending {
			return op
		}
	}
	return nil
}

// ResolvePendingOperation marks the operation with the given id resolved.
// It reports whether a pending operation was found.
func (s *ConversationState) ResolvePendingOperation(id string) bool {
	for i := range s.PendingOperations {
		op := &s.PendingOperations[i]
		if op.ID == id && op.Status == OperationPending {
			op.Status = OperationResolved
			return true
		}
	}
	return false
}
