package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("agentchain", reg)

	c.ChainExecution("chain", "completed")
	c.ChainExecution("chain", "completed")
	c.PermissionDecision("approved")
	c.CheckpointOp("save", nil)
	c.CheckpointOp("save", errors.New("down"))
	c.LLMCall("scripted", nil, 10, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.chainExecutions.WithLabelValues("chain", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.permissionDecisions.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointOps.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointOps.WithLabelValues("save", "error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("scripted", "prompt")))
}

func TestCollector_ObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("agentchain", reg)

	c.ObserveStep("research", "search", 50*time.Millisecond, nil)
	c.ObserveStep("research", "search", 50*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeFailures.WithLabelValues("research", "search")))
}
