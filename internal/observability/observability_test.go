package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/lesson-booking/internal/config"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(format)
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}
}

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_Enabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), &config.Config{OtelEndpoint: "localhost:4318"})
	require.NoError(t, err)
	assert.NotNil(t, shutdown)
}
