package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/types"
)

func countingNode(calls *int) func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
	return func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
		*calls++
		return &types.StateUpdate{Response: "ok"}, nil
	}
}

func TestModelCallLimit_Boundary(t *testing.T) {
	ctx := context.Background()
	calls := 0
	node := WithModelCallLimit(countingNode(&calls), 2)
	state := types.NewConversationState("u1", "c1", "q")

	// Calls 1 and 2 go through, each incrementing the counter.
	for i := 0; i < 2; i++ {
		update, err := node(ctx, state)
		require.NoError(t, err)
		state.Apply(update)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, state.ModelCalls)

	// Call 3 is blocked gracefully, not counted, and the node never runs.
	update, err := node(ctx, state)
	require.NoError(t, err)
	state.Apply(update)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, state.ModelCalls)
	assert.Equal(t, types.StatusError, state.TaskStatus)
	assert.Contains(t, state.Response, "model call limit")
}

func TestToolCallLimit_Boundary(t *testing.T) {
	ctx := context.Background()
	calls := 0
	node := WithToolCallLimit(countingNode(&calls), 1)
	state := types.NewConversationState("u1", "c1", "q")

	update, err := node(ctx, state)
	require.NoError(t, err)
	state.Apply(update)
	assert.Equal(t, 1, state.ToolCalls)

	update, err = node(ctx, state)
	require.NoError(t, err)
	state.Apply(update)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, state.ToolCalls)
	assert.Equal(t, types.StatusError, state.TaskStatus)
}

func TestModelCallLimit_FreshBudgetEachInvocation(t *testing.T) {
	calls := 0
	g, err := graph.NewBuilder("limited").
		AddNode("answer", WithModelCallLimit(func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			calls++
			return &types.StateUpdate{Response: "answered", TaskStatus: types.StatusComplete}, nil
		}, 3)).
		AddEdge("answer", graph.End).
		SetEntry("answer").
		Compile()
	require.NoError(t, err)

	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
	r := graph.NewRunner(g, mgr, zap.NewNop())
	ctx := context.Background()

	// The limit bounds calls within one invocation, not across the thread's
	// lifetime: turn four on the same thread still answers.
	for turn := 1; turn <= 4; turn++ {
		res, err := r.Invoke(ctx, types.NewConversationState("u1", "c1", "question"))
		require.NoError(t, err)
		assert.Equal(t, types.StatusComplete, res.State.TaskStatus, "turn %d", turn)
		assert.Equal(t, "answered", res.State.Response, "turn %d", turn)
		assert.Equal(t, 1, res.State.ModelCalls, "turn %d", turn)
	}
	assert.Equal(t, 4, calls)
}

func TestCallLimit_InnerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	node := WithModelCallLimit(func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
		return nil, boom
	}, 5)

	_, err := node(context.Background(), types.NewConversationState("u1", "c1", "q"))
	assert.ErrorIs(t, err, boom)
}
