package graph

import (
	"context"
	"fmt"

	"github.com/corvid-labs/agentchain/types"
)

// End is the terminal sentinel. An edge pointing at End finishes the run.
const End = "__end__"

// NodeFunc is one workflow step: a pure function from the current state to a
// partial update. It must not mutate the state it receives.
type NodeFunc func(ctx context.Context, state *types.ConversationState) (*types.StateUpdate, error)

// CondFunc inspects the state and names the next node to execute.
type CondFunc func(ctx context.Context, state *types.ConversationState) (string, error)

// Builder assembles an agent's node graph.
type Builder struct {
	name     string
	nodes    map[string]NodeFunc
	edges    map[string]string
	conds    map[string]CondFunc
	entry    string
	fallback string
}

// NewBuilder creates a graph builder for the named agent workflow.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]NodeFunc),
		edges: make(map[string]string),
		conds: make(map[string]CondFunc),
	}
}

// AddNode registers a named node.
func (b *Builder) AddNode(id string, fn NodeFunc) *Builder {
	b.nodes[id] = fn
	return b
}

// AddEdge adds an unconditional transition from one node to the next.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges[from] = to
	return b
}

// AddConditionalEdge adds a branch: after from executes, cond picks the next
// node based on the updated state.
func (b *Builder) AddConditionalEdge(from string, cond CondFunc) *Builder {
	b.conds[from] = cond
	return b
}

// SetEntry designates the entry node.
func (b *Builder) SetEntry(id string) *Builder {
	b.entry = id
	return b
}

// SetFallback designates the degraded-response node that failed nodes route
// to instead of propagating their error.
func (b *Builder) SetFallback(id string) *Builder {
	b.fallback = id
	return b
}

// Compile validates the graph and returns an immutable form.
func (b *Builder) Compile() (*Graph, error) {
	if b.entry == "" {
		return nil, fmt.Errorf("graph %s: no entry node", b.name)
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("graph %s: entry node %q not registered", b.name, b.entry)
	}
	if b.fallback != "" {
		if _, ok := b.nodes[b.fallback]; !ok {
			return nil, fmt.Errorf("graph %s: fallback node %q not registered", b.name, b.fallback)
		}
	}
	for from, to := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("graph %s: edge from unknown node %q", b.name, from)
		}
		if to != End {
			if _, ok := b.nodes[to]; !ok {
				return nil, fmt.Errorf("graph %s: edge %q -> unknown node %q", b.name, from, to)
			}
		}
	}
	for id := range b.nodes {
		_, hasEdge := b.edges[id]
		_, hasCond := b.conds[id]
		if !hasEdge && !hasCond {
			return nil, fmt.Errorf("graph %s: node %q has no outgoing edge", b.name, id)
		}
	}

	return &Graph{
		name:     b.name,
		nodes:    b.nodes,
		edges:    b.edges,
		conds:    b.conds,
		entry:    b.entry,
		fallback: b.fallback,
	}, nil
}

// Graph is a compiled, immutable agent workflow.
type Graph struct {
	name     string
	nodes    map[string]NodeFunc
	edges    map[string]string
	conds    map[string]CondFunc
	entry    string
	fallback string
}

// Name returns the workflow name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry node id.
func (g *Graph) Entry() string { return g.entry }

// next resolves the node following from, consulting the conditional edge
// first. Returns End when no edge is defined.
func (g *Graph) next(ctx context.Context, from string, state *types.ConversationState) (string, error) {
	if cond, ok := g.conds[from]; ok {
		to, err := cond(ctx, state)
		if err != nil {
			return "", fmt.Errorf("conditional edge from %q: %w", from, err)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return "", fmt.Errorf("conditional edge from %q routed to unknown node %q", from, to)
			}
		}
		return to, nil
	}
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	return End, nil
}
