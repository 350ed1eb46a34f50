// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "cremalink.device"

	// CommandsMetric counts frames handed to a transport.
	CommandsMetric = "cremalink_device_commands_total"

	OutcomeKey = "outcome"
)

// RecordCommand counts one command sent through transport. The meter is
// looked up per call so a provider installed later takes effect.
func RecordCommand(ctx context.Context, command, transport string, err error) {
	meter := otel.GetMeterProvider().Meter(meterName)
	counter, cerr := meter.Int64Counter(CommandsMetric, metric.WithDescription("Commands sent to machines"))
	if cerr != nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(CommandNameKey, command),
		attribute.String(TransportKey, transport),
		attribute.String(OutcomeKey, outcome),
	))
}
