// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ayla

import (
	"encoding/json"
	"strconv"
	"time"
)

// DeviceInfo is the subset of the Ayla device record cremalink uses.
type DeviceInfo struct {
	DSN              string `json:"dsn"`
	Key              int64  `json:"key"`
	Model            string `json:"model"`
	OEMModel         string `json:"oem_model"`
	ProductName      string `json:"product_name"`
	Type             string `json:"type"`
	LANEnabled       bool   `json:"lan_enabled"`
	LANIP            string `json:"lan_ip"`
	ConnectionStatus string `json:"connection_status"`
}

// Online reports whether the cloud sees the device connected.
func (d DeviceInfo) Online() bool {
	return d.ConnectionStatus == "Online"
}

// Property is one device property. Raw keeps every field the API returned.
type Property struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	BaseType      string `json:"base_type"`
	Direction     string `json:"direction"`
	Value         any    `json:"value"`
	UpdatedAt     any    `json:"updated_at"`
	DataUpdatedAt string `json:"data_updated_at"`

	Raw map[string]any `json:"-"`
}

// UnmarshalJSON keeps the raw object alongside the typed fields.
func (p *Property) UnmarshalJSON(data []byte) error {
	type plain Property
	var typed plain
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Property(typed)
	p.Raw = raw
	return nil
}

// StringValue returns the value when it is a string.
func (p Property) StringValue() (string, bool) {
	s, ok := p.Value.(string)
	return s, ok
}

// Time parses updated_at (RFC3339 or unix seconds), then data_updated_at.
// ok is false when neither is usable.
func (p Property) Time() (time.Time, bool) {
	if t, ok := parseTimestamp(p.UpdatedAt); ok {
		return t, true
	}
	if p.DataUpdatedAt != "" {
		return parseTimestamp(p.DataUpdatedAt)
	}
	return time.Time{}, false
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return unixFloat(t), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return unixFloat(f), true
		}
	}
	return time.Time{}, false
}

func unixFloat(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

type propertyEnvelope struct {
	Property Property `json:"property"`
}

// Datapoint is the record the API returns after a write.
type Datapoint struct {
	Value     any    `json:"value"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
