package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestKernel(t *testing.T) (*Kernel, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	k, err := New(provider.Meter("test"))
	require.NoError(t, err)
	return k, reader
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecordRegistrationAndDisposal(t *testing.T) {
	k, reader := newTestKernel(t)
	ctx := context.Background()

	k.RecordRegistration(ctx, "action")
	k.RecordRegistration(ctx, "icon")
	k.RecordDisposal(ctx, "action")

	assert.Equal(t, int64(2), sumCounter(t, reader, Registrations))
	assert.Equal(t, int64(1), sumCounter(t, reader, Disposals))
}

func TestRecordCallbackCountsFailuresOnly(t *testing.T) {
	k, reader := newTestKernel(t)
	ctx := context.Background()

	k.RecordCallback(ctx, "update", time.Millisecond, false)
	k.RecordCallback(ctx, "update", time.Millisecond, true)
	k.RecordCallback(ctx, "handler", time.Millisecond, true)

	assert.Equal(t, int64(2), sumCounter(t, reader, CallbackFailures))
}

func TestRecordEventAndPerform(t *testing.T) {
	k, reader := newTestKernel(t)
	ctx := context.Background()

	k.RecordEvent(ctx, "editor.opened", 3)
	k.RecordPerform(ctx, "a1", true)
	k.RecordPerform(ctx, "a1", false)

	assert.Equal(t, int64(1), sumCounter(t, reader, EventsFired))
	assert.Equal(t, int64(2), sumCounter(t, reader, ActionsPerformed))
}

func TestNilKernelIsNoop(t *testing.T) {
	var k *Kernel
	ctx := context.Background()

	assert.NotPanics(t, func() {
		k.RecordRegistration(ctx, "action")
		k.RecordDisposal(ctx, "action")
		k.RecordCallback(ctx, "update", time.Second, true)
		k.RecordEvent(ctx, "x", 0)
		k.RecordPerform(ctx, "a", true)
	})
}
