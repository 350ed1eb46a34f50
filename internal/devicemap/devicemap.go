// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package devicemap resolves a machine model to its device map: the command
// presets, property names and monitor profile for that model. Maps are
// embedded in the binary; an optional overlay directory can add or replace
// maps in JSON, YAML or TOML.
package devicemap

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/cremalink/internal/ecam/monitor"
)

//go:embed maps/*.json
var embedded embed.FS

// DefaultMonitorProperty is used when a map does not name its monitor property.
const DefaultMonitorProperty = "d302_monitor"

// ErrNotFound is returned when no map exists for a model.
var ErrNotFound = errors.New("device map not found")

// ErrEmptyModel is returned for blank model ids.
var ErrEmptyModel = errors.New("device map requires a non-empty model id")

// NotFoundError names the missing model and the maps that do exist.
type NotFoundError struct {
	Model     string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("device map '%s' not found. Available: [%s]", e.Model, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// oemModels maps OEM and Wi-Fi module identifiers reported by the cloud to
// the device map that serves them.
var oemModels = map[string]string{
	"DL-striker-cb": "ECAM450",
	"AY008ESP1":     "ECAM450",
}

// OEMModels returns a copy of the OEM alias table.
func OEMModels() map[string]string {
	out := make(map[string]string, len(oemModels))
	for k, v := range oemModels {
		out[k] = v
	}
	return out
}

// ResolveModelID maps an OEM id to its device map id; other ids pass through.
func ResolveModelID(id string) string {
	if m, ok := oemModels[id]; ok {
		return m
	}
	return id
}

func normalizeModelID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyModel
	}
	if strings.HasSuffix(strings.ToLower(id), ".json") {
		id = id[:len(id)-5]
	}
	return ResolveModelID(id), nil
}

// Command is one named command preset. In map files it may be written as an
// object or as a bare hex string.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts both {"command": "..."} and "...".
func (c *Command) UnmarshalJSON(data []byte) error {
	var hex string
	if err := json.Unmarshal(data, &hex); err == nil {
		c.Command = hex
		return nil
	}
	type plain Command
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Command(p)
	return nil
}

// Map is a decoded device map.
type Map struct {
	Model          string             `json:"-"`
	Source         string             `json:"-"`
	DeviceType     string             `json:"device_type"`
	CommandMap     map[string]Command `json:"command_map"`
	PropertyMap    map[string]string  `json:"property_map"`
	MonitorProfile map[string]any     `json:"monitor_profile"`

	profile monitor.Profile
}

// Profile returns the parsed monitor profile.
func (m *Map) Profile() monitor.Profile {
	return m.profile
}

// MonitorProperty names the property carrying the monitor frame.
func (m *Map) MonitorProperty() string {
	if p := m.PropertyMap["monitor"]; p != "" {
		return p
	}
	return DefaultMonitorProperty
}

// CommandNames lists the command presets, sorted.
func (m *Map) CommandNames() []string {
	out := make([]string, 0, len(m.CommandMap))
	for name := range m.CommandMap {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CommandHexes flattens the command map to name -> hex.
func (m *Map) CommandHexes() map[string]string {
	out := make(map[string]string, len(m.CommandMap))
	for name, c := range m.CommandMap {
		out[name] = c.Command
	}
	return out
}

// decode builds a Map from a generic document, whatever format it came from.
func decode(doc map[string]any) (*Map, error) {
	data, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("normalize device map: %w", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode device map: %w", err)
	}
	if m.CommandMap == nil {
		m.CommandMap = map[string]Command{}
	}
	if m.PropertyMap == nil {
		m.PropertyMap = map[string]string{}
	}
	profile, err := monitor.ParseProfile(m.MonitorProfile)
	if err != nil {
		return nil, err
	}
	m.profile = profile
	return &m, nil
}

// normalize turns YAML's map[any]any into map[string]any recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
