// Package agentchain wires the conversation engine for embedding with
// minimal boilerplate.
//
// Usage:
//
//	import "github.com/corvid-labs/agentchain"
//
//	engine, err := agentchain.New(agentchain.WithProvider(myProvider))
//	events := engine.Orchestrator.ExecuteChain(ctx, []string{"research", "chat"}, state)
//
// The HTTP server in cmd/agentchain assembles the same pieces from
// configuration; this entry point is for programs that embed the engine
// directly.
package agentchain

import (
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/agents"
	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/hitl"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/memory"
	"github.com/corvid-labs/agentchain/orchestrator"
	"github.com/corvid-labs/agentchain/retrieval"
)

// Version is the library version.
const Version = "0.1.0"

// Engine bundles the assembled components. Fields are exported so embedders
// can reach any layer directly.
type Engine struct {
	Checkpoints  *checkpoint.Manager
	Registry     *agents.Registry
	Memory       *memory.Store
	Orchestrator *orchestrator.Orchestrator
	HITL         *hitl.Handler
	Documents    *retrieval.MemoryDocumentStore
}

type engineOptions struct {
	logger    *zap.Logger
	provider  llm.Provider
	store     checkpoint.Store
	templates []orchestrator.Template
}

// Option configures the engine created by [New].
type Option func(*engineOptions)

// WithProvider sets the model provider. Defaults to a scripted provider
// suitable for tests and local development.
func WithProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.provider = p }
}

// WithLogger sets the zap logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithCheckpointStore sets the checkpoint backend. Defaults to in-memory.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(o *engineOptions) { o.store = s }
}

// WithTemplate registers a workflow template at construction time.
func WithTemplate(t orchestrator.Template) Option {
	return func(o *engineOptions) { o.templates = append(o.templates, t) }
}

// New assembles an engine with the built-in chat and research agents sharing
// one checkpoint manager, so chained agents accumulate a single conversation
// history per thread.
func New(opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.provider == nil {
		o.provider = llm.NewScriptedProvider("No model provider configured; this is a canned answer.")
	}
	if o.store == nil {
		o.store = checkpoint.NewMemoryStore()
	}

	checkpoints := checkpoint.NewManager(o.store, o.logger)
	docs := retrieval.NewMemoryDocumentStore()

	registry := agents.NewRegistry()
	chat, err := agents.NewChatAgent(o.provider, checkpoints, agents.ChatConfig{}, o.logger)
	if err != nil {
		return nil, err
	}
	registry.Register(chat)

	research, err := agents.NewResearchAgent(o.provider, docs, checkpoints, agents.ResearchConfig{}, o.logger)
	if err != nil {
		return nil, err
	}
	registry.Register(research)

	mem := memory.NewStore(o.logger)
	orch := orchestrator.New(registry, mem, o.logger)
	for _, t := range o.templates {
		if err := orch.RegisterTemplate(t); err != nil {
			return nil, err
		}
	}

	return &Engine{
		Checkpoints:  checkpoints,
		Registry:     registry,
		Memory:       mem,
		Orchestrator: orch,
		HITL:         hitl.NewHandler(checkpoints, registry, o.logger),
		Documents:    docs,
	}, nil
}
