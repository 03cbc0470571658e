package hitl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/agents"
	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/retrieval"
	"github.com/corvid-labs/agentchain/types"
)

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		text string
		want Decision
	}{
		{"yes", DecisionApproved},
		{"Yes please!", DecisionApproved},
		{"ok, proceed", DecisionApproved},
		{"y", DecisionApproved},
		{"no", DecisionDenied},
		{"No thanks.", DecisionDenied},
		{"cancel that", DecisionDenied},
		{"maybe later", DecisionAmbiguous},
		{"", DecisionAmbiguous},
		{"I know what you mean", DecisionAmbiguous}, // "know" is not "no"
		{"yes and no", DecisionAmbiguous},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyResponse(c.text), "text=%q", c.text)
	}
}

// suspendedResearch stands up a research agent with no local documents so the
// first invocation always suspends on the web-search permission gate.
func suspendedResearch(t *testing.T) (*Handler, string) {
	t.Helper()
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
	provider := llm.NewScriptedProvider("answer from what I had")

	agent, err := agents.NewResearchAgent(provider, retrieval.NewMemoryDocumentStore(), mgr,
		agents.ResearchConfig{}, zap.NewNop())
	require.NoError(t, err)

	reg := agents.NewRegistry()
	reg.Register(agent)

	state := types.NewConversationState("u1", "c1", "obscure question")
	state.Messages = []types.Message{types.NewUserMessage("obscure question")}
	res, err := agent.Invoke(context.Background(), state)
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	return NewHandler(mgr, reg, zap.NewNop()), state.ThreadID()
}

func TestHandleInterrupt_FormatsRequest(t *testing.T) {
	h, threadID := suspendedResearch(t)

	interrupt, err := h.HandleInterrupt(context.Background(), threadID)
	require.NoError(t, err)

	assert.Equal(t, threadID, interrupt.ThreadID)
	assert.Equal(t, "research", interrupt.Agent)
	assert.Equal(t, types.PermissionWebSearch, interrupt.Request.Type)
	// The pending operation's summary drives the prompt.
	assert.Contains(t, interrupt.Message, "web search for: obscure question")
	assert.Contains(t, interrupt.Message, "Reply with yes or no")
}

func TestExtractMessage_LayerOrder(t *testing.T) {
	op := &types.PendingOperation{ID: "op-1", Summary: "web search for: storms"}
	prompt := types.NewAssistantMessage("I need permission to check the radar. Reply with yes or no.")

	t.Run("explicit message wins", func(t *testing.T) {
		s := types.NewConversationState("u1", "c1", "q")
		s.Extra = map[string]any{"permission_message": "May I fetch the radar feed?"}
		s.Messages = []types.Message{prompt}
		assert.Equal(t, "May I fetch the radar feed?", extractMessage(s, op))
	})

	t.Run("summary outranks message scan", func(t *testing.T) {
		s := types.NewConversationState("u1", "c1", "q")
		s.Messages = []types.Message{prompt}
		assert.Equal(t, "Permission needed: web search for: storms. Reply with yes or no.", extractMessage(s, op))
	})

	t.Run("scan finds assistant prompt", func(t *testing.T) {
		s := types.NewConversationState("u1", "c1", "q")
		s.Messages = []types.Message{prompt}
		assert.Equal(t, prompt.Content, extractMessage(s, nil))
	})

	t.Run("generic fallback", func(t *testing.T) {
		s := types.NewConversationState("u1", "c1", "q")
		assert.Equal(t, "An action needs your approval. Reply with yes or no.", extractMessage(s, nil))
	})
}

func TestHandleInterrupt_NoPending(t *testing.T) {
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
	h := NewHandler(mgr, agents.NewRegistry(), zap.NewNop())

	_, err := h.HandleInterrupt(context.Background(), "u9:c9")
	assert.True(t, types.IsCode(err, types.ErrNoPendingPermission))
}

func TestHandleResponse_Approved(t *testing.T) {
	h, threadID := suspendedResearch(t)

	out, err := h.HandleResponse(context.Background(), threadID, "yes please")
	require.NoError(t, err)
	assert.Equal(t, "permission_granted", out.Type)
	assert.NotEmpty(t, out.Response)
}

func TestHandleResponse_DeniedThenCleared(t *testing.T) {
	h, threadID := suspendedResearch(t)
	ctx := context.Background()

	out, err := h.HandleResponse(ctx, threadID, "no")
	require.NoError(t, err)
	assert.Equal(t, "permission_denied", out.Type)
	assert.Equal(t, "completed", out.Status)

	// The pending permission is cleared: a second decision has nothing to act on.
	_, err = h.HandleResponse(ctx, threadID, "yes")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNoPendingPermission))
	assert.Contains(t, err.Error(), "no pending permission request found")
}

func TestHandleResponse_AmbiguousIsNoOp(t *testing.T) {
	h, threadID := suspendedResearch(t)
	ctx := context.Background()

	out, err := h.HandleResponse(ctx, threadID, "hmm, tell me more")
	require.NoError(t, err)
	assert.Equal(t, "clarification_needed", out.Type)

	// State untouched: the thread still accepts a real decision.
	final, err := h.HandleResponse(ctx, threadID, "yes")
	require.NoError(t, err)
	assert.Equal(t, "permission_granted", final.Type)
}
