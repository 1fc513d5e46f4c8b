package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
)

// manualMeter returns a meter whose readings are taken with collect.
func manualMeter(t *testing.T) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	return mp.Meter("test"), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

// sumBy returns the int64 sum data points of name keyed by the value of attribute key.
func sumBy(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()

	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not recorded", name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	out := map[string]int64{}

	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}

	return out
}

func TestREDMetrics_CountsRequestsAndErrorsPerOperation(t *testing.T) {
	t.Parallel()

	meter, reader := manualMeter(t)

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	ctx := context.Background()

	red.RecordRequest(ctx, "mcp.import_status", "ok", 20*time.Millisecond)
	red.RecordRequest(ctx, "mcp.import_status", "error", 30*time.Millisecond)
	red.RecordRequest(ctx, "http./healthz", "ok", time.Millisecond)

	rm := collect(t, reader)

	assert.Equal(t, map[string]int64{"mcp.import_status": 2, "http./healthz": 1},
		sumBy(t, rm, "gitgraft.requests.total", "op"))
	assert.Equal(t, map[string]int64{"mcp.import_status": 1},
		sumBy(t, rm, "gitgraft.errors.total", "op"))

	duration := findMetric(rm, "gitgraft.request.duration.seconds")
	require.NotNil(t, duration)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}

	assert.Equal(t, uint64(3), count)
}

func TestREDMetrics_InflightReturnsToZero(t *testing.T) {
	t.Parallel()

	meter, reader := manualMeter(t)

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	done := red.TrackInflight(context.Background(), "mcp.import_validate")

	assert.Equal(t, map[string]int64{"mcp.import_validate": 1},
		sumBy(t, collect(t, reader), "gitgraft.inflight.requests", "op"))

	done()

	assert.Equal(t, map[string]int64{"mcp.import_validate": 0},
		sumBy(t, collect(t, reader), "gitgraft.inflight.requests", "op"))
}

func TestREDMetrics_NilReceiverRecordsNothing(t *testing.T) {
	t.Parallel()

	var red *observability.REDMetrics

	red.RecordRequest(context.Background(), "http./metrics", "ok", time.Millisecond)
	red.TrackInflight(context.Background(), "http./metrics")()
}
