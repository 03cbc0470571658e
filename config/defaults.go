package config

import "time"

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // streams stay open across agent runs
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Checkpoint: CheckpointConfig{
			Backend:     "memory",
			KeyPrefix:   "agentchain",
			SweepMaxAge: 72 * time.Hour,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "agentchain.db",
		},
		LLM: LLMConfig{
			Provider:       "scripted",
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Orchestrator: OrchestratorConfig{
			MaxSteps:             50,
			ModelCallLimit:       10,
			ToolCallLimit:        5,
			SummaryTriggerTokens: 2000,
			SummaryKeepMessages:  4,
			MemoryMaxAge:         24 * time.Hour,
		},
		HITL: HITLConfig{
			DenialResponse: "Understood, I won't perform that action. I worked with locally available data instead.",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentchain",
			SampleRate:  1.0,
		},
	}
}
