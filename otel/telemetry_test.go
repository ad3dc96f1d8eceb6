//go:build unit

package otel

import (
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewTelemetry_WithProvider(t *testing.T) {
	t.Parallel()
	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(nil)

	tel, err := NewTelemetry(mp)
	require.NoError(t, err)
	require.NotNil(t, tel.EventsProduced)
	require.NotNil(t, tel.BatchesSent)
	require.NotNil(t, tel.SendRetries)
	require.NotNil(t, tel.EventsConsumed)
	require.NotNil(t, tel.ProcessErrors)
	require.NotNil(t, tel.CheckpointCommits)
	require.NotNil(t, tel.PartitionsActive)
	require.NotNil(t, tel.Rebalances)
}

func TestNewTelemetry_NilProvider(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil)
	require.NoError(t, err)
	require.NotNil(t, tel.EventsProduced)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Rebalances)
}
