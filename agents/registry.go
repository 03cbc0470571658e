package agents

import (
	"context"
	"sort"
	"sync"

	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/types"
)

// Agent pairs a compiled workflow with its public identity.
type Agent struct {
	Name        string
	Description string
	runner      *graph.Runner
}

// NewAgent wraps a runner as a registrable agent.
func NewAgent(name, description string, runner *graph.Runner) *Agent {
	return &Agent{Name: name, Description: description, runner: runner}
}

// Invoke runs the agent's workflow for the state's thread.
func (a *Agent) Invoke(ctx context.Context, state *types.ConversationState) (*graph.Result, error) {
	return a.runner.Invoke(ctx, state)
}

// Resume continues the agent's suspended workflow with a permission decision.
func (a *Agent) Resume(ctx context.Context, threadID string, approved bool) (*graph.Result, error) {
	return a.runner.Resume(ctx, threadID, approved)
}

// Info is the public description of a registered agent.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps agent identifiers to workflow instances.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds or replaces an agent under its name.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name] = a
}

// Get resolves an agent by name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, types.NewError(types.ErrAgentNotFound, "unknown agent: "+name)
	}
	return a, nil
}

// List enumerates registered agents sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, Info{Name: a.Name, Description: a.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
