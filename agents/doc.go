// Package agents holds the concrete agent workflows and the registry the
// orchestrator resolves them from. Each agent compiles its node graph once at
// construction; invocations share the graph but never the state.
package agents
