package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkease-api-go/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), &config.Config{ServiceName: "parkease"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabled(t *testing.T) {
	cfg := &config.Config{
		OTLPEndpoint: "http://127.0.0.1:4318",
		ServiceName:  "parkease-test",
		PodName:      "pod-0",
	}

	shutdown, err := Setup(context.Background(), cfg, nil)
	require.NoError(t, err)

	// nothing was recorded, so shutdown has no spans to push
	assert.NoError(t, shutdown(context.Background()))
}
