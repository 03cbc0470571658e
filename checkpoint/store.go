package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

// ErrNotFound is returned when no checkpoint exists for a thread.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is an immutable, versioned snapshot of a conversation state at
// one point in workflow execution.
type Checkpoint struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Agent    string `json:"agent"`

	// Node is the graph node most recently applied. When the workflow is
	// suspended, ResumeNode names the node execution continues from.
	Node       string `json:"node,omitempty"`
	ResumeNode string `json:"resume_node,omitempty"`

	State   *types.ConversationState `json:"state"`
	Version int                      `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence contract for checkpoints. One checkpoint per
// thread; Save replaces the previous snapshot atomically.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
	// DeleteOlderThan removes checkpoints not updated since the cutoff and
	// returns how many were removed. Used by the retention sweep; the engine
	// itself never deletes checkpoints.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Manager wraps a Store with id assignment, version bumping, and logging.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a checkpoint manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Save persists a snapshot for the thread, bumping the version.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint has no thread id")
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Version++

	if err := m.store.Save(ctx, cp); err != nil {
		return types.NewError(types.ErrCheckpointUnavailable, "failed to save checkpoint").WithCause(err)
	}

	m.logger.Debug("checkpoint saved",
		zap.String("thread_id", cp.ThreadID),
		zap.String("node", cp.Node),
		zap.Int("version", cp.Version),
	)
	return nil
}

// Load fetches the thread's snapshot. Returns ErrNotFound (wrapped) when the
// thread has no checkpoint yet.
func (m *Manager) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	cp, err := m.store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, types.NewError(types.ErrCheckpointUnavailable, "failed to load checkpoint").WithCause(err)
	}
	return cp, nil
}

// Delete removes the thread's snapshot.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.store.Delete(ctx, threadID)
}

// Sweep deletes checkpoints older than maxAge. Retention is an operator
// policy; the workflow runtime never calls this.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := m.store.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("checkpoint sweep completed",
			zap.Int("removed", removed),
			zap.Duration("max_age", maxAge),
		)
	}
	return removed, nil
}
