package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/config"
	"github.com/corvid-labs/agentchain/internal/metrics"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/types"
)

func TestBuildProvider_Unknown(t *testing.T) {
	_, err := buildProvider(config.LLMConfig{Provider: "carrier-pigeon"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestBuildAgents_HITLDenialResponseFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.HITL.DenialResponse = "Staying offline as requested; here is what the archive has."
	cfg.Orchestrator.ToolCallLimit = 2

	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
	collector := metrics.NewCollector("agentchain_test", prometheus.NewRegistry())
	provider := llm.NewScriptedProvider("canned")

	registry, err := buildAgents(cfg, provider, mgr, collector, zap.NewNop())
	require.NoError(t, err)

	research, err := registry.Get("research")
	require.NoError(t, err)
	ctx := context.Background()

	state := types.NewConversationState("u1", "c1", "something with no local coverage")
	state.Messages = []types.Message{types.NewUserMessage(state.Query)}
	res, err := research.Invoke(ctx, state)
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	// The configured denial text overrides the agent's built-in fallback.
	denied, err := research.Resume(ctx, "u1:c1", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, denied.State.TaskStatus)
	assert.Equal(t, cfg.HITL.DenialResponse, denied.State.Response)
}
