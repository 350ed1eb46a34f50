// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordCommand(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})

	ctx := context.Background()
	RecordCommand(ctx, "brew", "local", nil)
	RecordCommand(ctx, "brew", "local", nil)
	RecordCommand(ctx, "stop", "cloud", errors.New("offline"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != CommandsMetric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "unexpected data type %T", m.Data)
			for _, dp := range sum.DataPoints {
				cmd, _ := dp.Attributes.Value(attribute.Key(CommandNameKey))
				out, _ := dp.Attributes.Value(attribute.Key(OutcomeKey))
				counts[cmd.AsString()+"/"+out.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"brew/ok": 2, "stop/error": 1}, counts)
}
