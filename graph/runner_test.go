package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/types"
)

func newTestRunner(t *testing.T, g *Graph, opts ...RunnerOption) (*Runner, *checkpoint.Manager) {
	t.Helper()
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
	return NewRunner(g, mgr, zap.NewNop(), opts...), mgr
}

func linearGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewBuilder("test").
		AddNode("greet", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{
				Messages: []types.Message{types.NewAssistantMessage("hello " + s.Query)},
			}, nil
		}).
		AddNode("respond", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{Response: "done", TaskStatus: types.StatusComplete}, nil
		}).
		AddEdge("greet", "respond").
		AddEdge("respond", End).
		SetEntry("greet").
		Compile()
	require.NoError(t, err)
	return g
}

func TestInvoke_LinearRun(t *testing.T) {
	r, mgr := newTestRunner(t, linearGraph(t))

	init := types.NewConversationState("u1", "c1", "world")
	init.Messages = []types.Message{types.NewUserMessage("world")}

	res, err := r.Invoke(context.Background(), init)
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.Equal(t, "done", res.State.Response)
	assert.Len(t, res.State.Messages, 2)

	cp, err := mgr.Load(context.Background(), "u1:c1")
	require.NoError(t, err)
	assert.Equal(t, End, cp.Node)
}

func TestInvoke_HistoryMergesAcrossTurns(t *testing.T) {
	r, _ := newTestRunner(t, linearGraph(t))
	ctx := context.Background()

	first := types.NewConversationState("u1", "c1", "one")
	first.Messages = []types.Message{types.NewUserMessage("one")}
	res1, err := r.Invoke(ctx, first)
	require.NoError(t, err)
	require.Len(t, res1.State.Messages, 2)

	second := types.NewConversationState("u1", "c1", "two")
	second.Messages = []types.Message{types.NewUserMessage("two")}
	res2, err := r.Invoke(ctx, second)
	require.NoError(t, err)

	// Stored turns are never overwritten: 2 prior + user + assistant.
	require.Len(t, res2.State.Messages, 4)
	assert.Equal(t, "one", res2.State.Messages[0].Content)
	assert.Equal(t, "two", res2.State.Messages[2].Content)
}

func TestInvoke_CallCountersResetPerTurn(t *testing.T) {
	g, err := NewBuilder("counting").
		AddNode("work", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{
				ModelCallDelta: 1,
				ToolCallDelta:  1,
				Response:       "done",
				TaskStatus:     types.StatusComplete,
			}, nil
		}).
		AddEdge("work", End).
		SetEntry("work").
		Compile()
	require.NoError(t, err)

	r, _ := newTestRunner(t, g)
	ctx := context.Background()

	// Counters never carry over between turns of the same thread, even
	// though the checkpointed history does.
	for turn := 0; turn < 4; turn++ {
		res, err := r.Invoke(ctx, types.NewConversationState("u1", "c1", "again"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.State.ModelCalls, "turn %d", turn)
		assert.Equal(t, 1, res.State.ToolCalls, "turn %d", turn)
	}
}

func permissionGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewBuilder("gated").
		AddNode("ask", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{
				TaskStatus: types.StatusPermissionRequired,
				PendingOperations: []types.PendingOperation{{
					ID: "op-1", Type: string(types.PermissionWebSearch),
					Summary: "search the web", PermissionRequired: true,
					Status: types.OperationPending,
				}},
				Messages: []types.Message{types.NewAssistantMessage(
					"I need permission to search the web. Reply with yes or no.")},
			}, nil
		}).
		AddNode("search", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{Response: "found it", TaskStatus: types.StatusComplete}, nil
		}).
		AddEdge("ask", "search").
		AddEdge("search", End).
		SetEntry("ask").
		Compile()
	require.NoError(t, err)
	return g
}

func TestSuspendAndResume_Approved(t *testing.T) {
	r, _ := newTestRunner(t, permissionGraph(t))
	ctx := context.Background()

	init := types.NewConversationState("u1", "c1", "find x")
	res, err := r.Invoke(ctx, init)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, "ask", res.InterruptNode)
	assert.Equal(t, types.StatusPermissionRequired, res.State.TaskStatus)

	// A second plain invocation is rejected while suspended.
	_, err = r.Invoke(ctx, types.NewConversationState("u1", "c1", "again"))
	assert.True(t, types.IsCode(err, types.ErrPermissionPending))

	resumed, err := r.Resume(ctx, "u1:c1", true)
	require.NoError(t, err)
	assert.False(t, resumed.Interrupted)
	assert.Equal(t, "found it", resumed.State.Response)

	grants := resumed.State.MemList(types.MemPermissionGrants)
	require.Len(t, grants, 1)
	assert.Nil(t, resumed.State.FirstPendingPermission())
}

func TestSuspendAndResume_Denied(t *testing.T) {
	r, _ := newTestRunner(t, permissionGraph(t), WithDenialResponse("using local data"))
	ctx := context.Background()

	_, err := r.Invoke(ctx, types.NewConversationState("u1", "c1", "find x"))
	require.NoError(t, err)

	res, err := r.Resume(ctx, "u1:c1", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.Equal(t, "using local data", res.State.Response)
	assert.Nil(t, res.State.FirstPendingPermission())

	// Resuming again: nothing pending.
	_, err = r.Resume(ctx, "u1:c1", true)
	assert.True(t, types.IsCode(err, types.ErrNoPendingPermission))
}

func TestResume_UnknownThread(t *testing.T) {
	r, _ := newTestRunner(t, permissionGraph(t))
	_, err := r.Resume(context.Background(), "nobody:nothing", true)
	assert.True(t, types.IsCode(err, types.ErrNoPendingPermission))
}

func TestNodeError_FallsBackToDegradedResponse(t *testing.T) {
	g, err := NewBuilder("flaky").
		AddNode("work", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return nil, errors.New("template service unreachable")
		}).
		AddNode("fallback", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{Response: "plain formatting instead"}, nil
		}).
		AddEdge("work", End).
		AddEdge("fallback", End).
		SetEntry("work").
		SetFallback("fallback").
		Compile()
	require.NoError(t, err)

	r, _ := newTestRunner(t, g)
	res, err := r.Invoke(context.Background(), types.NewConversationState("u1", "c1", "q"))
	require.NoError(t, err)

	assert.Equal(t, "plain formatting instead", res.State.Response)
	assert.Equal(t, types.StatusError, res.State.TaskStatus)

	failed := res.State.MemList(types.MemFailedOperations)
	require.Len(t, failed, 1)
	rec, ok := failed[0].(types.FailedOperation)
	require.True(t, ok)
	assert.Equal(t, "work", rec.Operation)
	assert.Contains(t, rec.Error, "unreachable")
}

func TestRun_StepLimitGuard(t *testing.T) {
	g, err := NewBuilder("loop").
		AddNode("spin", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return &types.StateUpdate{}, nil
		}).
		AddConditionalEdge("spin", func(ctx context.Context, s *types.ConversationState) (string, error) {
			return "spin", nil
		}).
		SetEntry("spin").
		Compile()
	require.NoError(t, err)

	r, _ := newTestRunner(t, g, WithMaxSteps(5))
	res, err := r.Invoke(context.Background(), types.NewConversationState("u1", "c1", "q"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, res.State.TaskStatus)
	assert.Contains(t, res.State.Response, "step limit")
}

func TestCompile_Validation(t *testing.T) {
	_, err := NewBuilder("bad").Compile()
	assert.ErrorContains(t, err, "no entry node")

	_, err = NewBuilder("bad").
		AddNode("a", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return nil, nil
		}).
		SetEntry("a").
		Compile()
	assert.ErrorContains(t, err, "no outgoing edge")

	_, err = NewBuilder("bad").
		AddNode("a", func(ctx context.Context, s *types.ConversationState) (*types.StateUpdate, error) {
			return nil, nil
		}).
		AddEdge("a", "ghost").
		SetEntry("a").
		Compile()
	assert.ErrorContains(t, err, "unknown node")
}
