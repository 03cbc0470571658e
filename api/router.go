// Package api assembles the HTTP routes for the engine.
package api

import (
	"net/http"

	"github.com/corvid-labs/agentchain/api/handlers"
)

// Deps are the constructed handlers the router mounts.
type Deps struct {
	Chain       *handlers.ChainHandler
	Workflow    *handlers.WorkflowHandler
	Permissions *handlers.PermissionHandler
	Memory      *handlers.MemoryHandler
	Health      *handlers.HealthHandler
	// Metrics serves the prometheus scrape endpoint; nil disables it.
	Metrics http.Handler
}

// NewRouter mounts all routes on a fresh mux.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chains/execute", d.Chain.HandleExecute)
	mux.HandleFunc("POST /v1/chains/stream", d.Chain.HandleStream)

	mux.HandleFunc("POST /v1/workflows/execute", d.Workflow.HandleExecute)
	mux.HandleFunc("POST /v1/workflows/stream", d.Workflow.HandleStream)
	mux.HandleFunc("GET /v1/workflows/templates", d.Workflow.HandleTemplates)
	mux.HandleFunc("GET /v1/agents", d.Workflow.HandleAgents)

	mux.HandleFunc("GET /v1/permissions", d.Permissions.HandlePending)
	mux.HandleFunc("POST /v1/permissions/respond", d.Permissions.HandleRespond)

	mux.HandleFunc("GET /v1/memory/metrics", d.Memory.HandleMetrics)
	mux.HandleFunc("GET /v1/memory/history", d.Memory.HandleHistory)
	mux.HandleFunc("POST /v1/memory/cleanup", d.Memory.HandleCleanup)

	mux.HandleFunc("GET /healthz", d.Health.HandleHealth)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	return mux
}
