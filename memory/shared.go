package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

// RunStatus is the lifecycle of one tracked workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// WorkflowRun tracks one agent workflow execution within a conversation.
type WorkflowRun struct {
	ID           string        `json:"id"`
	Agent        string        `json:"agent"`
	Status       RunStatus     `json:"status"`
	Steps        int           `json:"steps"`
	StepDuration time.Duration `json:"step_duration"`
	StartedAt    time.Time     `json:"started_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ChainRecord is a completed run migrated to conversation history.
type ChainRecord struct {
	RunID      string    `json:"run_id"`
	Agent      string    `json:"agent"`
	Status     RunStatus `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

// Conversation holds one conversation's shared memory: the value map threaded
// through agent states, the active workflow runs, and completed-run history.
type Conversation struct {
	Values          map[string]any
	activeWorkflows map[string]*WorkflowRun
	chainHistory    []ChainRecord
	UpdatedAt       time.Time
}

// Metrics is the read-only performance summary.
type Metrics struct {
	ActiveWorkflows     int           `json:"active_workflows"`
	CompletedWorkflows  int           `json:"completed_workflows"`
	FailedWorkflows     int           `json:"failed_workflows"`
	AverageStepDuration time.Duration `json:"average_step_duration"`
}

// Store manages shared memory per conversation thread.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	logger        *zap.Logger
}

// NewStore creates a shared memory store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		conversations: make(map[string]*Conversation),
		logger:        logger.With(zap.String("component", "shared_memory")),
	}
}

// ForThread returns the conversation memory for a thread, creating it on
// first use. The returned Values map is the same instance handed to every
// agent in the conversation.
func (s *Store) ForThread(threadID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		conv = &Conversation{
			Values:          make(map[string]any),
			activeWorkflows: make(map[string]*WorkflowRun),
			UpdatedAt:       time.Now(),
		}
		s.conversations[threadID] = conv
	}
	return conv
}

// Set writes one shared-memory value. Append-only keys cannot be replaced
// through Set; use AppendList for those.
func (s *Store) Set(threadID, key string, value any) error {
	if types.IsAppendOnlyMemKey(key) {
		return types.NewError(types.ErrInvalidRequest, "key "+key+" is append-only; use AppendList")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(threadID)
	conv.Values[key] = value
	conv.UpdatedAt = time.Now()
	return nil
}

// Get reads one shared-memory value.
func (s *Store) Get(threadID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return nil, false
	}
	v, ok := conv.Values[key]
	return v, ok
}

// AppendList appends to a list-valued key. Existing scalar values are lifted
// into a single-element list first, so the key only ever grows.
func (s *Store) AppendList(threadID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(threadID)
	switch existing := conv.Values[key].(type) {
	case nil:
		conv.Values[key] = []any{value}
	case []any:
		conv.Values[key] = append(existing, value)
	default:
		conv.Values[key] = []any{existing, value}
	}
	conv.UpdatedAt = time.Now()
}

func (s *Store) conversationLocked(threadID string) *Conversation {
	conv, ok := s.conversations[threadID]
	if !ok {
		conv = &Conversation{
			Values:          make(map[string]any),
			activeWorkflows: make(map[string]*WorkflowRun),
			UpdatedAt:       time.Now(),
		}
		s.conversations[threadID] = conv
	}
	return conv
}

// AbsorbState merges an agent's final shared-memory view back into the
// conversation. Append-only keys grow; no key is ever deleted, so one agent
// can never remove another agent's contributions.
func (s *Store) AbsorbState(threadID string, state *types.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return
	}
	for k, v := range state.SharedMemory {
		conv.Values[k] = v
	}
	conv.UpdatedAt = time.Now()
}

// StartRun registers an active workflow run for the conversation.
func (s *Store) StartRun(threadID, runID, agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		conv = &Conversation{
			Values:          make(map[string]any),
			activeWorkflows: make(map[string]*WorkflowRun),
		}
		s.conversations[threadID] = conv
	}
	now := time.Now()
	conv.activeWorkflows[runID] = &WorkflowRun{
		ID:        runID,
		Agent:     agent,
		Status:    RunRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	conv.UpdatedAt = now
}

// RecordStep adds one node-step duration to an active run.
func (s *Store) RecordStep(threadID, runID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return
	}
	run, ok := conv.activeWorkflows[runID]
	if !ok {
		return
	}
	run.Steps++
	run.StepDuration += d
	run.UpdatedAt = time.Now()
	conv.UpdatedAt = run.UpdatedAt
}

// FinishRun marks a run completed or failed and migrates it to chain history.
func (s *Store) FinishRun(threadID, runID string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return
	}
	run, ok := conv.activeWorkflows[runID]
	if !ok {
		return
	}
	run.Status = status
	run.UpdatedAt = time.Now()
	conv.chainHistory = append(conv.chainHistory, ChainRecord{
		RunID:      run.ID,
		Agent:      run.Agent,
		Status:     status,
		FinishedAt: run.UpdatedAt,
	})
	delete(conv.activeWorkflows, runID)
	conv.UpdatedAt = run.UpdatedAt

	s.logger.Debug("workflow run finished",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID),
		zap.String("status", string(status)),
	)
}

// PerformanceMetrics aggregates run counts and average step duration across
// all conversations. Read-only, no side effects.
func (s *Store) PerformanceMetrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m Metrics
	var totalSteps int
	var totalDuration time.Duration

	for _, conv := range s.conversations {
		m.ActiveWorkflows += len(conv.activeWorkflows)
		for _, run := range conv.activeWorkflows {
			totalSteps += run.Steps
			totalDuration += run.StepDuration
		}
		for _, rec := range conv.chainHistory {
			switch rec.Status {
			case RunCompleted:
				m.CompletedWorkflows++
			case RunFailed:
				m.FailedWorkflows++
			}
		}
	}
	if totalSteps > 0 {
		m.AverageStepDuration = totalDuration / time.Duration(totalSteps)
	}
	return m
}

// CleanupCompletedWorkflows removes stale active-workflow entries whose last
// update exceeds maxAge. Entries already migrated to chain history are
// unaffected. This is the only deletion path in the store. Returns the number
// of entries removed.
func (s *Store) CleanupCompletedWorkflows(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for threadID, conv := range s.conversations {
		for runID, run := range conv.activeWorkflows {
			if run.UpdatedAt.Before(cutoff) {
				delete(conv.activeWorkflows, runID)
				removed++
				s.logger.Info("cleaned up stale workflow",
					zap.String("thread_id", threadID),
					zap.String("run_id", runID),
					zap.Time("last_update", run.UpdatedAt),
				)
			}
		}
	}
	return removed
}

// History returns a copy of the chain history for a thread.
func (s *Store) History(threadID string) []ChainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return nil
	}
	return append([]ChainRecord(nil), conv.chainHistory...)
}
