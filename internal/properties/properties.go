// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package properties interprets the property set a machine publishes to the
// cloud (or to the local server): recipes, counters, maintenance values,
// per-profile settings and identification.
package properties

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
)

// Entry is one property as found in the raw map.
type Entry struct {
	Key   string
	Name  string
	Value any
}

// Snapshot wraps a raw property map of the form
//
//	{"<id>": {"property": {"name": "...", "value": ...}}}
//
// Flat {"<name>": <value>} maps are accepted too.
type Snapshot struct {
	Raw        map[string]any `json:"raw"`
	ReceivedAt time.Time      `json:"received_at"`
	Parsed     map[string]any `json:"parsed,omitempty"`

	entries []Entry
}

// New indexes raw in stable key order.
func New(raw map[string]any, receivedAt time.Time) *Snapshot {
	if raw == nil {
		raw = map[string]any{}
	}
	s := &Snapshot{Raw: raw, ReceivedAt: receivedAt, Parsed: map[string]any{}}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if prop, ok := propertyOf(raw[k]); ok {
			name, _ := prop["name"].(string)
			s.entries = append(s.entries, Entry{Key: k, Name: name, Value: prop["value"]})
		}
	}
	return s
}

func propertyOf(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	prop, ok := m["property"].(map[string]any)
	return prop, ok
}

// Entries lists the nested property entries in key order.
func (s *Snapshot) Entries() []Entry {
	return s.entries
}

// Get returns the raw entry stored under name, either as a top-level key or
// as a nested property with that name.
func (s *Snapshot) Get(name string) (any, bool) {
	if v, ok := s.Raw[name]; ok {
		return v, true
	}
	for _, e := range s.entries {
		if e.Name == name {
			return s.Raw[e.Key], true
		}
	}
	return nil, false
}

// Value returns the value of the named property.
func (s *Snapshot) Value(name string) (any, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e.Value, e.Value != nil
		}
	}
	if v, ok := s.Raw[name]; ok {
		if prop, ok := propertyOf(v); ok {
			return prop["value"], prop["value"] != nil
		}
		return v, v != nil
	}
	return nil, false
}

// Names lists property names in key order.
func (s *Snapshot) Names() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Name)
	}
	return out
}

func (s *Snapshot) stringWithPrefix(prefix string) (string, bool) {
	for _, e := range s.entries {
		if strings.HasPrefix(e.Name, prefix) {
			if v, ok := e.Value.(string); ok {
				return v, true
			}
		}
	}
	return "", false
}

func (s *Snapshot) anyWithPrefix(prefix string) (any, bool) {
	for _, e := range s.entries {
		if strings.HasPrefix(e.Name, prefix) && e.Value != nil {
			return e.Value, true
		}
	}
	return nil, false
}

// d0Frame splits a D0 frame into opcode and payload (bytes between the
// opcode and the checksum).
func d0Frame(b64 string) (int, []byte, bool) {
	raw, err := ecam.DecodeB64(b64)
	if err != nil || len(raw) < 6 || raw[0] != 0xD0 {
		return 0, nil, false
	}
	end := min(int(raw[1])+1, len(raw))
	opcode := int(raw[2])<<8 | int(raw[3])
	if end-2 < 4 {
		return opcode, []byte{}, true
	}
	return opcode, raw[4 : end-2], true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
