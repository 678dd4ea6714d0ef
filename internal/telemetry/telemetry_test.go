package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/thesisd/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	tel, err := Setup(context.Background(), config.TelemetryConfig{}, "test", nil)
	require.NoError(t, err)
	assert.Nil(t, tel.provider)

	// Shutdown on a no-op (and on nil) is safe.
	tel.Shutdown(context.Background())
	(*Telemetry)(nil).Shutdown(context.Background())
}

func TestSetupEnabledInstallsProvider(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		Insecure:       true,
		ExportInterval: config.Duration(time.Minute),
	}

	tel, err := Setup(context.Background(), cfg, "test", nil)
	require.NoError(t, err)
	require.NotNil(t, tel.provider)

	// No collector is listening; shutdown must still return.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tel.Shutdown(ctx)
}
