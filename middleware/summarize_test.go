package middleware

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/types"
)

// An unknown encoding forces the deterministic chars/4 estimate.
func newTestSummarizer(p llm.Provider, trigger, keep int) *Summarizer {
	return NewSummarizer(p, SummarizeConfig{
		TriggerTokens: trigger,
		KeepMessages:  keep,
		Encoding:      "nonexistent-encoding",
	}, zap.NewNop())
}

func longHistory(n, chars int) []types.Message {
	msgs := make([]types.Message, 0, n)
	filler := strings.Repeat("x", chars)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, types.NewUserMessage(filler))
		} else {
			msgs = append(msgs, types.NewAssistantMessage(filler))
		}
	}
	return msgs
}

func TestSummarize_CompactsAboveThreshold(t *testing.T) {
	provider := llm.NewScriptedProvider("they discussed project planning")
	s := newTestSummarizer(provider, 500, 2)

	state := types.NewConversationState("u1", "c1", "q")
	state.Messages = longHistory(6, 400) // ~624 estimated tokens

	update, err := s.Node()(context.Background(), state)
	require.NoError(t, err)
	state.Apply(update)

	// Exactly 1 summary + keep_messages survive.
	require.Len(t, state.Messages, 3)
	assert.True(t, strings.HasPrefix(state.Messages[0].Content, SummaryMarker))
	assert.Contains(t, state.Messages[0].Content, "project planning")
	assert.Equal(t, types.RoleAssistant, state.Messages[0].Role)
	assert.Equal(t, 1, state.ModelCalls)
	assert.Equal(t, 1, provider.Calls())
}

func TestSummarize_NoOpBelowThreshold(t *testing.T) {
	provider := llm.NewScriptedProvider("unused")
	s := newTestSummarizer(provider, 500, 2)

	state := types.NewConversationState("u1", "c1", "q")
	state.Messages = longHistory(4, 40)

	update, err := s.Node()(context.Background(), state)
	require.NoError(t, err)
	state.Apply(update)

	assert.Len(t, state.Messages, 4)
	assert.Equal(t, 0, provider.Calls())
}

func TestSummarize_IdempotentAfterCompaction(t *testing.T) {
	provider := llm.NewScriptedProvider("summary")
	s := newTestSummarizer(provider, 500, 2)

	state := types.NewConversationState("u1", "c1", "q")
	state.Messages = longHistory(6, 400)

	update, err := s.Node()(context.Background(), state)
	require.NoError(t, err)
	state.Apply(update)
	require.Len(t, state.Messages, 3)

	// Compacted history sits below the threshold: second run is a no-op.
	update, err = s.Node()(context.Background(), state)
	require.NoError(t, err)
	state.Apply(update)
	assert.Len(t, state.Messages, 3)
	assert.Equal(t, 1, provider.Calls())
}

func TestSummarize_ProviderFailureKeepsHistory(t *testing.T) {
	failing := llm.ProviderFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewError(types.ErrUpstreamError, "model unavailable")
	})
	s := newTestSummarizer(failing, 500, 2)

	state := types.NewConversationState("u1", "c1", "q")
	state.Messages = longHistory(6, 400)

	update, err := s.Node()(context.Background(), state)
	require.NoError(t, err)
	state.Apply(update)

	assert.Len(t, state.Messages, 6)
}
