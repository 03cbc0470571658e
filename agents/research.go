package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/middleware"
	"github.com/corvid-labs/agentchain/retrieval"
	"github.com/corvid-labs/agentchain/types"
)

// WebSearcher reaches the open web once the user has granted permission.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, limit int) ([]retrieval.SearchResult, error)
}

// ResearchConfig tunes the research agent.
type ResearchConfig struct {
	Model string
	// MinLocalResults is how many local hits count as "enough" before the
	// agent asks to go to the web.
	MinLocalResults int
	MaxModelCalls   int
	MaxToolCalls    int
	SearchLimit     int
	// Web is optional; without it the agent works from local documents only.
	Web WebSearcher
}

// extraFindings is the agent-scoped scratch key holding search hits between
// nodes of one invocation.
const extraFindings = "research.findings"

// NewResearchAgent builds the document-research agent. Local search runs
// unconditionally; web search happens only behind a permission interrupt.
func NewResearchAgent(provider llm.Provider, docs retrieval.DocumentStore, checkpoints *checkpoint.Manager, cfg ResearchConfig, logger *zap.Logger, opts ...graph.RunnerOption) (*Agent, error) {
	if cfg.MinLocalResults <= 0 {
		cfg.MinLocalResults = 1
	}
	if cfg.MaxModelCalls <= 0 {
		cfg.MaxModelCalls = 10
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 5
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}

	search := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		resp, err := docs.Search(ctx, state.Query, cfg.SearchLimit, nil)
		if err != nil {
			return nil, err
		}
		findings := make([]string, 0, len(resp.Results))
		for _, r := range resp.Results {
			findings = append(findings, fmt.Sprintf("%s: %s", r.Title, r.ContentPreview))
		}
		return &types.StateUpdate{
			Extra: map[string]any{extraFindings: findings},
		}, nil
	}

	requestPermission := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		prompt := fmt.Sprintf(
			"I couldn't find enough in the local documents for %q. I need permission to search the web. Reply with yes or no.",
			state.Query)
		return &types.StateUpdate{
			TaskStatus: types.StatusPermissionRequired,
			PendingOperations: []types.PendingOperation{{
				ID:                 uuid.NewString(),
				Type:               string(types.PermissionWebSearch),
				Summary:            "web search for: " + state.Query,
				PermissionRequired: true,
				Status:             types.OperationPending,
				CreatedAt:          time.Now(),
			}},
			Messages: []types.Message{types.NewAssistantMessage(prompt)},
		}, nil
	}

	webSearch := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		findings := findingsFromExtra(state)
		if cfg.Web == nil {
			return &types.StateUpdate{
				Extra: map[string]any{extraFindings: findings},
			}, nil
		}
		hits, err := cfg.Web.SearchWeb(ctx, state.Query, cfg.SearchLimit)
		if err != nil {
			return nil, err
		}
		for _, r := range hits {
			findings = append(findings, fmt.Sprintf("[web] %s: %s", r.Title, r.ContentPreview))
		}
		return &types.StateUpdate{
			Extra: map[string]any{extraFindings: findings},
		}, nil
	}

	synthesize := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		findings := findingsFromExtra(state)
		var b strings.Builder
		b.WriteString("Answer the question using these research findings. Cite which finding supports each claim.\n\nQuestion: ")
		b.WriteString(state.Query)
		b.WriteString("\n\nFindings:\n")
		if len(findings) == 0 {
			b.WriteString("(none available)\n")
		}
		for i, f := range findings {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}

		resp, err := provider.Completion(ctx, &llm.ChatRequest{
			Model:    cfg.Model,
			Messages: []types.Message{types.NewUserMessage(b.String())},
		})
		if err != nil {
			return nil, err
		}

		mem := map[string]any{}
		if len(findings) > 0 {
			list := make([]any, len(findings))
			for i, f := range findings {
				list[i] = f
			}
			mem[types.MemResearchFindings] = list
		}
		return &types.StateUpdate{
			Messages:     []types.Message{types.NewAssistantMessage(resp.Content)},
			SharedMemory: mem,
			Response:     resp.Content,
			TaskStatus:   types.StatusComplete,
		}, nil
	}

	degrade := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		return &types.StateUpdate{
			Response: "I couldn't complete the research. Here's what I can say from memory: no verified findings are available for that question.",
		}, nil
	}

	g, err := graph.NewBuilder("research").
		AddNode("search", search).
		AddNode("request_permission", requestPermission).
		AddNode("web_search", middleware.WithToolCallLimit(webSearch, cfg.MaxToolCalls)).
		AddNode("synthesize", middleware.WithModelCallLimit(synthesize, cfg.MaxModelCalls)).
		AddNode("degrade", degrade).
		AddConditionalEdge("search", func(ctx context.Context, state *types.ConversationState) (string, error) {
			if len(findingsFromExtra(state)) >= cfg.MinLocalResults {
				return "synthesize", nil
			}
			return "request_permission", nil
		}).
		AddEdge("request_permission", "web_search").
		AddEdge("web_search", "synthesize").
		AddEdge("synthesize", graph.End).
		AddEdge("degrade", graph.End).
		SetEntry("search").
		SetFallback("degrade").
		Compile()
	if err != nil {
		return nil, err
	}

	runnerOpts := append([]graph.RunnerOption{
		graph.WithDenialResponse("Understood, staying with local documents. I couldn't find enough locally to answer fully."),
	}, opts...)
	runner := graph.NewRunner(g, checkpoints, logger, runnerOpts...)
	return NewAgent("research", "Document research with permission-gated web search", runner), nil
}

// findingsFromExtra normalizes the scratch findings list, which arrives as
// []string in-process and []any after a checkpoint round trip.
func findingsFromExtra(state *types.ConversationState) []string {
	switch v := state.Extra[extraFindings].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
