// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldDSN           = "dsn"
	FieldModel         = "model"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldJob       = "job"
	FieldDetails   = "details"

	// Device / protocol fields
	FieldDeviceIP = "device_ip"
	FieldScheme   = "scheme"
	FieldProperty = "property"
	FieldCommand  = "command"
	FieldSeq      = "seq"
	FieldSource   = "source"
	FieldStatus   = "status"

	// Network fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldAddr    = "addr"
)

// Component names used across the service.
const (
	ComponentAudit     = "audit"
	ComponentLANServer = "lanserver"
	ComponentCloud     = "ayla"
	ComponentAuth      = "gigya"
	ComponentDevice    = "device"
	ComponentHistory   = "history"
	ComponentConfig    = "config"
	ComponentDaemon    = "daemon"
)
