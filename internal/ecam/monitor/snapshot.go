// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package monitor

import (
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
)

// Snapshot sources.
const (
	SourceLocal = "local"
	SourceCloud = "cloud"
)

// WarnNoMonitor is recorded when a payload carries no monitor value.
const WarnNoMonitor = "no monitor_b64 in payload"

// Snapshot is a monitor reading with its decode diagnostics.
type Snapshot struct {
	Raw        []byte         `json:"-"`
	RawB64     string         `json:"raw_b64"`
	ReceivedAt time.Time      `json:"received_at"`
	Parsed     map[string]any `json:"parsed"`
	Warnings   []string       `json:"warnings"`
	Errors     []string       `json:"errors"`
	Source     string         `json:"source"`
	DeviceID   string         `json:"device_id,omitempty"`
	Frame      *Frame         `json:"-"`
}

// OK reports whether the snapshot holds a decoded frame.
func (s Snapshot) OK() bool {
	return s.Frame != nil
}

// BuildSnapshot decodes the monitor value found in payload. The value is read
// from "monitor_b64", falling back to monitor.data.value; "received_at" is unix
// seconds. Decode failures are reported in Errors, never returned.
func BuildSnapshot(payload map[string]any, source, deviceID string) Snapshot {
	if source == "" {
		source = SourceLocal
	}
	snap := Snapshot{
		ReceivedAt: receivedAt(payload),
		Parsed:     map[string]any{},
		Warnings:   []string{},
		Errors:     []string{},
		Source:     source,
		DeviceID:   deviceID,
	}

	rawB64 := monitorValue(payload)
	if rawB64 == "" {
		snap.Warnings = append(snap.Warnings, WarnNoMonitor)
		return snap
	}
	snap.RawB64 = rawB64
	return withFrame(snap)
}

// FromB64 builds a snapshot straight from a base64 monitor value.
func FromB64(rawB64 string, receivedAt time.Time, source, deviceID string) Snapshot {
	snap := Snapshot{
		RawB64:     rawB64,
		ReceivedAt: receivedAt,
		Parsed:     map[string]any{},
		Warnings:   []string{},
		Errors:     []string{},
		Source:     source,
		DeviceID:   deviceID,
	}
	if rawB64 == "" {
		snap.Warnings = append(snap.Warnings, WarnNoMonitor)
		return snap
	}
	return withFrame(snap)
}

func withFrame(snap Snapshot) Snapshot {
	raw, decodeErr := ecam.DecodeB64(snap.RawB64)
	if decodeErr == nil {
		snap.Raw = raw
	}
	frame, err := DecodeB64(snap.RawB64)
	if err != nil {
		snap.Errors = append(snap.Errors, "parse_failed: "+err.Error())
		if decodeErr == nil {
			snap.Parsed["raw_length"] = len(raw)
		}
		return snap
	}
	snap.Frame = frame
	for k, v := range frame.Fields() {
		snap.Parsed[k] = v
	}
	return snap
}

func monitorValue(payload map[string]any) string {
	if s, ok := payload["monitor_b64"].(string); ok && s != "" {
		return s
	}
	mon, _ := payload["monitor"].(map[string]any)
	data, _ := mon["data"].(map[string]any)
	s, _ := data["value"].(string)
	return s
}

func receivedAt(payload map[string]any) time.Time {
	switch v := payload["received_at"].(type) {
	case float64:
		if v > 0 {
			sec := int64(v)
			return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
		}
	case int64:
		if v > 0 {
			return time.Unix(v, 0).UTC()
		}
	case int:
		if v > 0 {
			return time.Unix(int64(v), 0).UTC()
		}
	}
	return time.Now().UTC()
}
