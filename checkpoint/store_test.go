package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

func newTestState() *types.ConversationState {
	s := types.NewConversationState("u1", "c1", "what's the capital of France?")
	s.Apply(&types.StateUpdate{
		Messages: []types.Message{types.NewUserMessage("what's the capital of France?")},
		SharedMemory: map[string]any{
			types.MemResearchFindings: []any{"Paris"},
			types.MemAgentHandoffs:    []any{"research->chat"},
		},
	})
	return s
}

// exercises the Store contract shared by every backend.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	mgr := NewManager(store, zap.NewNop())

	_, err := store.Load(ctx, "u1:c1")
	assert.ErrorIs(t, err, ErrNotFound)

	cp := &Checkpoint{
		ThreadID: "u1:c1",
		Agent:    "research",
		Node:     "search",
		State:    newTestState(),
	}
	require.NoError(t, mgr.Save(ctx, cp))
	assert.Equal(t, 1, cp.Version)

	// Round trip: equivalent state.
	loaded, err := mgr.Load(ctx, "u1:c1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, loaded.ID)
	assert.Equal(t, "search", loaded.Node)
	require.NotNil(t, loaded.State)
	assert.Equal(t, cp.State.Query, loaded.State.Query)
	assert.Len(t, loaded.State.Messages, 1)
	assert.Len(t, loaded.State.MemList(types.MemAgentHandoffs), 1)

	// Idempotent read: loading twice without a save yields identical results.
	again, err := mgr.Load(ctx, "u1:c1")
	require.NoError(t, err)
	assert.Equal(t, loaded.Version, again.Version)
	assert.Equal(t, loaded.State.Messages, again.State.Messages)

	// Mutating the live state must not leak into the stored snapshot.
	cp.State.Apply(&types.StateUpdate{Messages: []types.Message{types.NewAssistantMessage("Paris")}})
	reloaded, err := mgr.Load(ctx, "u1:c1")
	require.NoError(t, err)
	assert.Len(t, reloaded.State.Messages, 1)

	// Save again bumps version.
	cp2 := &Checkpoint{ID: cp.ID, ThreadID: "u1:c1", Agent: "research", Node: "respond",
		State: cp.State, Version: loaded.Version, CreatedAt: loaded.CreatedAt}
	require.NoError(t, mgr.Save(ctx, cp2))
	latest, err := mgr.Load(ctx, "u1:c1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Len(t, latest.State.Messages, 2)

	require.NoError(t, mgr.Delete(ctx, "u1:c1"))
	_, err = store.Load(ctx, "u1:c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	runStoreContract(t, NewRedisStore(client, "test", 0, zap.NewNop()))
}

func TestSQLStore_Contract(t *testing.T) {
	store, err := OpenSQLStore("sqlite", ":memory:", zap.NewNop())
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestMemoryStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := &Checkpoint{ThreadID: "u1:old", State: newTestState(),
		UpdatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.Save(ctx, old))
	fresh := &Checkpoint{ThreadID: "u1:fresh", State: newTestState(),
		UpdatedAt: time.Now()}
	require.NoError(t, store.Save(ctx, fresh))

	removed, err := store.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Load(ctx, "u1:old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "u1:fresh")
	assert.NoError(t, err)
}

func TestRedisStore_Sweep(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test", 0, zap.NewNop())
	mgr := NewManager(store, zap.NewNop())

	stale := &Checkpoint{ThreadID: "u1:stale", State: newTestState(),
		UpdatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.Save(ctx, stale))

	require.NoError(t, mgr.Save(ctx, &Checkpoint{ThreadID: "u1:live", State: newTestState()}))

	removed, err := mgr.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Load(ctx, "u1:stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "u1:live")
	assert.NoError(t, err)
}
