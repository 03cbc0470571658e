package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. Intended for tests and
// single-node deployments without durability requirements.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	updated   map[string]time.Time
}

// NewMemoryStore creates an in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
		updated:   make(map[string]time.Time),
	}
}

// Save stores a deep copy of the checkpoint. Serializing through JSON keeps
// the stored snapshot isolated from later mutations of the live state, the
// same way a remote backend would.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[cp.ThreadID] = data
	s.updated[cp.ThreadID] = cp.UpdatedAt
	return nil
}

// Load returns the stored checkpoint for the thread.
func (s *MemoryStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.snapshots[threadID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes the thread's checkpoint.
func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, threadID)
	delete(s.updated, threadID)
	return nil
}

// DeleteOlderThan removes checkpoints last updated before the cutoff.
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for threadID, updated := range s.updated {
		if updated.Before(cutoff) {
			delete(s.snapshots, threadID)
			delete(s.updated, threadID)
			removed++
		}
	}
	return removed, nil
}
