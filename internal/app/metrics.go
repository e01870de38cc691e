package app

import (
	"context"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dshills/extkernel/internal/metrics"
)

// meterSetup owns the in-process meter provider. Readings are pulled on
// demand through a manual reader; nothing is exported.
type meterSetup struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	kernel   *metrics.Kernel
}

func newMeterSetup() (*meterSetup, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	k, err := metrics.New(provider.Meter(metrics.MeterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &meterSetup{provider: provider, reader: reader, kernel: k}, nil
}

func (m *meterSetup) collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := m.reader.Collect(ctx, &rm)
	return rm, err
}

func (m *meterSetup) shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// MetricsSummary totals each counter across its attribute sets.
type MetricsSummary map[string]int64

// Names returns the metric names in sorted order.
func (s MetricsSummary) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summarize reduces collected metrics to counter totals. Histograms
// contribute their sample count.
func Summarize(rm metricdata.ResourceMetrics) MetricsSummary {
	out := make(MetricsSummary)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return out
}
