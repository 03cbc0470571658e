package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/config"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	p, err := Init(config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_NilSafe(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}
