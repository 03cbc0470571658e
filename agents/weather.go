package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/middleware"
	"github.com/corvid-labs/agentchain/types"
)

// WeatherReport is one observation from the weather tool.
type WeatherReport struct {
	Location  string  `json:"location"`
	Condition string  `json:"condition"`
	TempC     float64 `json:"temp_c"`
}

// WeatherService is the external weather tool RPC.
type WeatherService interface {
	Current(ctx context.Context, location string) (*WeatherReport, error)
}

// WeatherConfig tunes the weather agent.
type WeatherConfig struct {
	MaxToolCalls int
	// Retry overrides the backoff policy for the tool call.
	Retry *middleware.Policy
}

const extraWeatherReport = "weather.report"

// NewWeatherAgent builds the weather agent: one retried tool RPC, then a
// formatted answer. Exhausted retries degrade to an apology instead of an
// error response.
func NewWeatherAgent(svc WeatherService, checkpoints *checkpoint.Manager, cfg WeatherConfig, logger *zap.Logger, opts ...graph.RunnerOption) (*Agent, error) {
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 5
	}
	retryer := middleware.NewRetryer(cfg.Retry, logger)

	fetch := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		location := locationFromQuery(state.Query)
		report, err := middleware.DoWithResult(ctx, retryer, func() (*WeatherReport, error) {
			return svc.Current(ctx, location)
		})
		if err != nil {
			return nil, err
		}
		return &types.StateUpdate{
			Extra: map[string]any{extraWeatherReport: report},
		}, nil
	}

	respond := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		report, ok := state.Extra[extraWeatherReport].(*WeatherReport)
		if !ok {
			return nil, types.NewError(types.ErrNodeFailed, "weather report missing from state")
		}
		answer := fmt.Sprintf("Currently %.1f°C and %s in %s.", report.TempC, report.Condition, report.Location)
		return &types.StateUpdate{
			Messages:   []types.Message{types.NewAssistantMessage(answer)},
			Response:   answer,
			TaskStatus: types.StatusComplete,
		}, nil
	}

	degrade := func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error) {
		return &types.StateUpdate{
			Response: "The weather service isn't reachable right now. Please try again in a few minutes.",
		}, nil
	}

	g, err := graph.NewBuilder("weather").
		AddNode("fetch", middleware.WithToolCallLimit(fetch, cfg.MaxToolCalls)).
		AddNode("respond", respond).
		AddNode("degrade", degrade).
		AddEdge("fetch", "respond").
		AddEdge("respond", graph.End).
		AddEdge("degrade", graph.End).
		SetEntry("fetch").
		SetFallback("degrade").
		Compile()
	if err != nil {
		return nil, err
	}

	runner := graph.NewRunner(g, checkpoints, logger, opts...)
	return NewAgent("weather", "Current weather via the forecast tool", runner), nil
}

// locationFromQuery pulls the place name out of phrasings like
// "what's the weather in Paris?". Falls back to the whole query.
func locationFromQuery(query string) string {
	q := strings.TrimRight(strings.TrimSpace(query), "?.!")
	lower := strings.ToLower(q)
	if i := strings.LastIndex(lower, " in "); i >= 0 {
		return strings.TrimSpace(q[i+4:])
	}
	if i := strings.LastIndex(lower, " for "); i >= 0 {
		return strings.TrimSpace(q[i+5:])
	}
	return q
}
