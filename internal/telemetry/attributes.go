// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans across the service.
const (
	DeviceIDKey    = "device.id"
	DeviceModelKey = "device.model"
	TransportKey   = "device.transport"

	CommandNameKey = "ecam.command"
	BeverageKey    = "ecam.beverage"
	PropertyKey    = "ayla.property"

	JobNameKey = "job.name"

	ErrorKey = "error"
)

// DeviceAttributes describes the device a span operates on.
func DeviceAttributes(deviceID, model, transport string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(DeviceModelKey, model))
	}
	if transport != "" {
		attrs = append(attrs, attribute.String(TransportKey, transport))
	}
	return attrs
}

// CommandAttributes describes a command sent to the machine.
func CommandAttributes(command, beverage string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(CommandNameKey, command)}
	if beverage != "" {
		attrs = append(attrs, attribute.String(BeverageKey, beverage))
	}
	return attrs
}

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool(ErrorKey, true))
}
