// Package metrics provides prometheus collectors for the engine. Internal:
// handlers and cmd wire it, nothing outside this module imports it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's prometheus metrics. It implements
// graph.StepObserver so node executions feed the duration histogram
// directly.
type Collector struct {
	chainExecutions     *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	nodeFailures        *prometheus.CounterVec
	permissionDecisions *prometheus.CounterVec
	checkpointOps       *prometheus.CounterVec
	llmCalls            *prometheus.CounterVec
	llmTokens           *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewCollector registers the engine metrics on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		chainExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_executions_total",
			Help:      "Chain and workflow executions by outcome.",
		}, []string{"kind", "status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Workflow node execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "node"}),
		nodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_failures_total",
			Help:      "Workflow node errors.",
		}, []string{"agent", "node"}),
		permissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_decisions_total",
			Help:      "HITL permission decisions by kind.",
		}, []string{"decision"}),
		checkpointOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Checkpoint store operations by outcome.",
		}, []string{"operation", "status"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Model provider calls by outcome.",
		}, []string{"provider", "status"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Token usage reported by the provider.",
		}, []string{"provider", "kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by path and status code.",
		}, []string{"path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// ObserveStep implements graph.StepObserver.
func (c *Collector) ObserveStep(agent, node string, d time.Duration, err error) {
	c.nodeDuration.WithLabelValues(agent, node).Observe(d.Seconds())
	if err != nil {
		c.nodeFailures.WithLabelValues(agent, node).Inc()
	}
}

// ChainExecution records a finished chain or workflow.
func (c *Collector) ChainExecution(kind, status string) {
	c.chainExecutions.WithLabelValues(kind, status).Inc()
}

// PermissionDecision records one HITL decision.
func (c *Collector) PermissionDecision(decision string) {
	c.permissionDecisions.WithLabelValues(decision).Inc()
}

// CheckpointOp records a checkpoint store operation.
func (c *Collector) CheckpointOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.checkpointOps.WithLabelValues(operation, status).Inc()
}

// LLMCall records one provider call with its token usage.
func (c *Collector) LLMCall(provider string, err error, promptTokens, completionTokens int) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.llmCalls.WithLabelValues(provider, status).Inc()
	if promptTokens > 0 {
		c.llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// HTTPRequest records one API request.
func (c *Collector) HTTPRequest(path, status string, d time.Duration) {
	c.httpRequests.WithLabelValues(path, status).Inc()
	c.httpDuration.WithLabelValues(path).Observe(d.Seconds())
}
