package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/middleware"
	"github.com/corvid-labs/agentchain/types"
)

const chatSystemPrompt = "You are a helpful assistant. Answer the user's question directly and concisely."

// ChatConfig tunes the chat agent.
type ChatConfig struct {
	Model                  string
	MaxModelCalls          int
	SummarizeTriggerTokens int
	SummarizeKeepMessages  int
}

// NewChatAgent builds the general-purpose conversational agent: summarize
// long histories, then one model completion.
func NewChatAgent(provider llm.Provider, checkpoints *checkpoint.Manager, cfg ChatConfig, logger *zap.Logger, opts ...graph.RunnerOption) (*Agent, error) {
	if cfg.MaxModelCalls <= 0 {
		cfg.MaxModelCalls = 10
	}
	summarizer := middleware.NewSummarizer(provider, middleware.SummarizeConfig{
		TriggerTokens: cfg.SummarizeTriggerTokens,
		KeepMessages:  cfg.SummarizeKeepMessages,
		Model:         cfg.Model,
	}, logger)

	complete := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		req := &llm.ChatRequest{
			Model:    cfg.Model,
			Messages: append([]types.Message{types.NewSystemMessage(chatSystemPrompt)}, state.Messages...),
		}
		resp, err := provider.Completion(ctx, req)
		if err != nil {
			return nil, err
		}
		return &types.StateUpdate{
			Messages:   []types.Message{types.NewAssistantMessage(resp.Content)},
			Response:   resp.Content,
			TaskStatus: types.StatusComplete,
		}, nil
	}

	degrade := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		return &types.StateUpdate{
			Response: "I ran into a problem answering that. Could you rephrase or try again?",
		}, nil
	}

	g, err := graph.NewBuilder("chat").
		AddNode("summarize", summarizer.Node()).
		AddNode("complete", middleware.WithModelCallLimit(complete, cfg.MaxModelCalls)).
		AddNode("degrade", degrade).
		AddEdge("summarize", "complete").
		AddEdge("complete", graph.End).
		AddEdge("degrade", graph.End).
		SetEntry("summarize").
		SetFallback("degrade").
		Compile()
	if err != nil {
		return nil, err
	}

	runner := graph.NewRunner(g, checkpoints, logger, opts...)
	return NewAgent("chat", "General conversation and question answering", runner), nil
}
