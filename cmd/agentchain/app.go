package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/agents"
	"github.com/corvid-labs/agentchain/api"
	"github.com/corvid-labs/agentchain/api/handlers"
	"github.com/corvid-labs/agentchain/checkpoint"
	"github.com/corvid-labs/agentchain/config"
	"github.com/corvid-labs/agentchain/graph"
	"github.com/corvid-labs/agentchain/hitl"
	"github.com/corvid-labs/agentchain/internal/metrics"
	"github.com/corvid-labs/agentchain/internal/server"
	"github.com/corvid-labs/agentchain/internal/telemetry"
	"github.com/corvid-labs/agentchain/llm"
	"github.com/corvid-labs/agentchain/memory"
	"github.com/corvid-labs/agentchain/orchestrator"
	"github.com/corvid-labs/agentchain/retrieval"
)

// app holds the assembled service and its background maintenance loops.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	handler     http.Handler
	checkpoints *checkpoint.Manager
	memory      *memory.Store
	otel        *telemetry.Providers
}

// buildApp wires the whole engine from configuration.
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	collector := metrics.NewCollector("agentchain", prometheus.DefaultRegisterer)

	store, pings, err := openCheckpointStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	checkpoints := checkpoint.NewManager(store, logger)

	provider, err := buildProvider(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	registry, err := buildAgents(cfg, provider, checkpoints, collector, logger)
	if err != nil {
		return nil, err
	}

	mem := memory.NewStore(logger)
	orch := orchestrator.New(registry, mem, logger)
	registerTemplates(orch)

	permissions := hitl.NewHandler(checkpoints, registry, logger)

	router := api.NewRouter(api.Deps{
		Chain:       handlers.NewChainHandler(orch, collector, logger),
		Workflow:    handlers.NewWorkflowHandler(orch, collector, logger),
		Permissions: handlers.NewPermissionHandler(permissions, collector, logger),
		Memory:      handlers.NewMemoryHandler(mem, logger),
		Health:      handlers.NewHealthHandler(Version, pings, logger),
		Metrics:     promhttp.Handler(),
	})

	mws := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		MetricsMiddleware(collector),
	}
	if cfg.Auth.Enabled {
		mws = append(mws, JWTAuth(cfg.Auth.JWTSecret, []string{"/healthz", "/metrics"}, logger))
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		handler:     ChainMiddleware(router, mws...),
		checkpoints: checkpoints,
		memory:      mem,
		otel:        otelProviders,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then shuts everything down.
func (a *app) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := a.handler
	if a.cfg.Server.RateLimitRPS > 0 {
		handler = RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger)(handler)
	}

	go a.maintenanceLoop(ctx)

	mgr := server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", a.cfg.Server.HTTPPort),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.logger)

	err := mgr.Run(ctx)

	if a.otel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if terr := a.otel.Shutdown(shutdownCtx); terr != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(terr))
		}
	}
	return err
}

// maintenanceLoop runs periodic retention: checkpoint sweeps and removal of
// stale active-workflow entries.
func (a *app) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if maxAge := a.cfg.Checkpoint.SweepMaxAge; maxAge > 0 {
				if n, err := a.checkpoints.Sweep(ctx, maxAge); err != nil {
					a.logger.Warn("checkpoint sweep failed", zap.Error(err))
				} else if n > 0 {
					a.logger.Info("checkpoint sweep", zap.Int("removed", n))
				}
			}
			if maxAge := a.cfg.Orchestrator.MemoryMaxAge; maxAge > 0 {
				if n := a.memory.CleanupCompletedWorkflows(maxAge); n > 0 {
					a.logger.Info("memory cleanup", zap.Int("removed", n))
				}
			}
		}
	}
}

// openCheckpointStore builds the configured backend and the health pings
// that go with it.
func openCheckpointStore(cfg *config.Config, logger *zap.Logger) (checkpoint.Store, map[string]handlers.ComponentPing, error) {
	pings := map[string]handlers.ComponentPing{}
	switch cfg.Checkpoint.Backend {
	case "memory":
		return checkpoint.NewMemoryStore(), pings, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		pings["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return checkpoint.NewRedisStore(client, cfg.Checkpoint.KeyPrefix, cfg.Checkpoint.TTL, logger), pings, nil
	case "sql":
		store, err := checkpoint.OpenSQLStore(cfg.Database.Driver, cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql checkpoint store: %w", err)
		}
		return store, pings, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

// buildProvider selects the model provider and wraps it with rate limiting.
func buildProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	var provider llm.Provider
	switch cfg.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
	case "scripted", "":
		provider = llm.NewScriptedProvider(
			"I don't have a model configured, so this is a canned answer. Set llm.provider to openai for real completions.")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.RateLimitRPS > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return provider, nil
}

// buildAgents registers the built-in agents against the shared checkpoint
// manager so chained agents accumulate one conversation history.
func buildAgents(cfg *config.Config, provider llm.Provider, checkpoints *checkpoint.Manager, collector *metrics.Collector, logger *zap.Logger) (*agents.Registry, error) {
	opts := []graph.RunnerOption{
		graph.WithObserver(collector),
		graph.WithMaxSteps(cfg.Orchestrator.MaxSteps),
	}
	if cfg.HITL.DenialResponse != "" {
		opts = append(opts, graph.WithDenialResponse(cfg.HITL.DenialResponse))
	}

	registry := agents.NewRegistry()

	chat, err := agents.NewChatAgent(provider, checkpoints, agents.ChatConfig{
		Model:                  cfg.LLM.Model,
		MaxModelCalls:          cfg.Orchestrator.ModelCallLimit,
		SummarizeTriggerTokens: cfg.Orchestrator.SummaryTriggerTokens,
		SummarizeKeepMessages:  cfg.Orchestrator.SummaryKeepMessages,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}
	registry.Register(chat)

	docs := retrieval.NewMemoryDocumentStore()
	research, err := agents.NewResearchAgent(provider, docs, checkpoints, agents.ResearchConfig{
		Model:         cfg.LLM.Model,
		MaxModelCalls: cfg.Orchestrator.ModelCallLimit,
		MaxToolCalls:  cfg.Orchestrator.ToolCallLimit,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}
	registry.Register(research)

	return registry, nil
}

// registerTemplates installs the built-in workflow templates. Validation
// errors here are programming mistakes, not runtime conditions.
func registerTemplates(orch *orchestrator.Orchestrator) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(orch.RegisterTemplate(orchestrator.Template{
		Name:        "research_report",
		Description: "Gather findings, then write the answer",
		Steps: []orchestrator.TemplateStep{
			{ID: "gather", AgentType: "research", Description: "Collect relevant findings"},
			{ID: "write", AgentType: "chat", Description: "Compose the final answer", Prerequisites: []string{"gather"}},
		},
	}))
}
