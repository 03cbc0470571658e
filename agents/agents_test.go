package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/middleware"
	"github.com/corvid-labs/agentchain/retrieval"
	"github.com/corvid-labs/agentchain/types"
)

func newCheckpoints(t *testing.T) *checkpoint.Manager {
	t.Helper()
	return checkpoint.NewManager(checkpoint.NewMemoryStore(), zap.NewNop())
}

func userState(userID, convID, query string) *types.ConversationState {
	s := types.NewConversationState(userID, convID, query)
	s.Messages = []types.Message{types.NewUserMessage(query)}
	return s
}

func TestRegistry_LookupAndList(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("ghost")
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))

	reg.Register(NewAgent("weather", "forecasts", nil))
	reg.Register(NewAgent("chat", "conversation", nil))

	infos := reg.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "chat", infos[0].Name)
	assert.Equal(t, "weather", infos[1].Name)
}

func TestChatAgent_AnswersQuery(t *testing.T) {
	provider := llm.NewScriptedProvider("I'm not sure.").
		On("capital of france", "The capital of France is Paris.")

	agent, err := NewChatAgent(provider, newCheckpoints(t), ChatConfig{Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	res, err := agent.Invoke(context.Background(), userState("u1", "c1", "What is the capital of France?"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.Contains(t, res.State.Response, "Paris")
	require.Len(t, res.State.Messages, 2)
	assert.Equal(t, types.RoleAssistant, res.State.Messages[1].Role)
	assert.Equal(t, 1, res.State.ModelCalls)
}

type scriptedWeb struct {
	hits  []retrieval.SearchResult
	calls int
}

func (w *scriptedWeb) SearchWeb(ctx context.Context, query string, limit int) ([]retrieval.SearchResult, error) {
	w.calls++
	return w.hits, nil
}

func TestResearchAgent_LocalHitsSkipPermission(t *testing.T) {
	docs := retrieval.NewMemoryDocumentStore()
	docs.Add(retrieval.Document{ID: "d1", Title: "France", Content: "Paris is the capital of France."})
	provider := llm.NewScriptedProvider("Paris, per finding 1.")

	agent, err := NewResearchAgent(provider, docs, newCheckpoints(t), ResearchConfig{}, zap.NewNop())
	require.NoError(t, err)

	res, err := agent.Invoke(context.Background(), userState("u1", "c1", "capital of France"))
	require.NoError(t, err)

	assert.False(t, res.Interrupted)
	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.NotEmpty(t, res.State.MemList(types.MemResearchFindings))
}

func TestResearchAgent_PermissionGateApproved(t *testing.T) {
	docs := retrieval.NewMemoryDocumentStore() // nothing local
	web := &scriptedWeb{hits: []retrieval.SearchResult{
		{DocumentID: "w1", Title: "Quantum news", ContentPreview: "a fresh result"},
	}}
	provider := llm.NewScriptedProvider("Summary of web findings.")

	agent, err := NewResearchAgent(provider, docs, newCheckpoints(t), ResearchConfig{Web: web}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := agent.Invoke(ctx, userState("u1", "c1", "latest quantum results"))
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	assert.Equal(t, "request_permission", res.InterruptNode)
	require.NotNil(t, res.State.FirstPendingPermission())
	assert.Equal(t, string(types.PermissionWebSearch), res.State.FirstPendingPermission().Type)

	resumed, err := agent.Resume(ctx, "u1:c1", true)
	require.NoError(t, err)
	assert.False(t, resumed.Interrupted)
	assert.Equal(t, 1, web.calls)
	assert.Equal(t, types.StatusComplete, resumed.State.TaskStatus)

	findings := resumed.State.MemList(types.MemResearchFindings)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0], "[web]")
	assert.Len(t, resumed.State.MemList(types.MemPermissionGrants), 1)
}

func TestResearchAgent_PermissionDenied(t *testing.T) {
	docs := retrieval.NewMemoryDocumentStore()
	web := &scriptedWeb{}
	provider := llm.NewScriptedProvider("unused")

	agent, err := NewResearchAgent(provider, docs, newCheckpoints(t), ResearchConfig{Web: web}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = agent.Invoke(ctx, userState("u1", "c2", "obscure topic"))
	require.NoError(t, err)

	res, err := agent.Resume(ctx, "u1:c2", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.Contains(t, res.State.Response, "local documents")
	assert.Zero(t, web.calls)
}

func TestResearchAgent_WebSearchRespectsToolLimit(t *testing.T) {
	docs := retrieval.NewMemoryDocumentStore()
	web := &scriptedWeb{}
	provider := llm.NewScriptedProvider("unused")
	mgr := newCheckpoints(t)

	agent, err := NewResearchAgent(provider, docs, mgr, ResearchConfig{Web: web, MaxToolCalls: 1}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := agent.Invoke(ctx, userState("u1", "c3", "niche subject"))
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	// An invocation that has already spent its tool budget is blocked before
	// the searcher runs, even with permission granted.
	cp, err := mgr.Load(ctx, "u1:c3")
	require.NoError(t, err)
	cp.State.ToolCalls = 1
	require.NoError(t, mgr.Save(ctx, cp))

	resumed, err := agent.Resume(ctx, "u1:c3", true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, resumed.State.TaskStatus)
	assert.Zero(t, web.calls)
}

type flakyWeather struct {
	failures int
	calls    int
}

func (f *flakyWeather) Current(ctx context.Context, location string) (*WeatherReport, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("tool rpc timeout")
	}
	return &WeatherReport{Location: location, Condition: "sunny", TempC: 21.0}, nil
}

func fastRetry() *middleware.Policy {
	return &middleware.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
}

func TestWeatherAgent_RetriesThenAnswers(t *testing.T) {
	svc := &flakyWeather{failures: 2}
	agent, err := NewWeatherAgent(svc, newCheckpoints(t), WeatherConfig{Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	res, err := agent.Invoke(context.Background(), userState("u1", "c1", "what's the weather in Paris?"))
	require.NoError(t, err)

	assert.Equal(t, 3, svc.calls)
	assert.Equal(t, types.StatusComplete, res.State.TaskStatus)
	assert.Contains(t, res.State.Response, "21.0°C")
	assert.Contains(t, res.State.Response, "Paris")
	assert.Equal(t, 1, res.State.ToolCalls)
}

func TestWeatherAgent_ExhaustionDegrades(t *testing.T) {
	svc := &flakyWeather{failures: 100}
	agent, err := NewWeatherAgent(svc, newCheckpoints(t), WeatherConfig{Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	res, err := agent.Invoke(context.Background(), userState("u1", "c1", "weather in Oslo"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusError, res.State.TaskStatus)
	assert.Contains(t, res.State.Response, "weather service")

	failed := res.State.MemList(types.MemFailedOperations)
	require.Len(t, failed, 1)
}

func TestLocationFromQuery(t *testing.T) {
	assert.Equal(t, "Paris", locationFromQuery("what's the weather in Paris?"))
	assert.Equal(t, "New York", locationFromQuery("forecast for New York"))
	assert.Equal(t, "Oslo", locationFromQuery("Oslo"))
}
