// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package monitor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flag and predicate data sources.
const (
	SrcAlarms    = "alarms"
	SrcSwitches  = "switches"
	SrcStatus    = "status"
	SrcAction    = "action"
	SrcProgress  = "progress"
	SrcAccessory = "accessory"
)

// Predicate kinds.
const (
	KindEquals    = "equals"
	KindNotEquals = "not_equals"
	KindInSet     = "in_set"
	KindNotInSet  = "not_in_set"
	KindFlagTrue  = "flag_true"
	KindFlagFalse = "flag_false"
	KindBitSet    = "bit_set"
	KindBitClear  = "bit_clear"
)

var validSources = map[string]bool{
	SrcAlarms: true, SrcSwitches: true, SrcStatus: true,
	SrcAction: true, SrcProgress: true, SrcAccessory: true,
}

var validKinds = map[string]bool{
	KindEquals: true, KindNotEquals: true, KindInSet: true, KindNotInSet: true,
	KindFlagTrue: true, KindFlagFalse: true, KindBitSet: true, KindBitClear: true,
}

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid monitor profile")

// Flag names one bit of the alarm or switch bytes.
type Flag struct {
	Source      string `json:"source"`
	Byte        int    `json:"byte"`
	Bit         int    `json:"bit"`
	Invert      bool   `json:"invert,omitempty"`
	Description string `json:"description,omitempty"`
}

func (f Flag) validate() error {
	if f.Source != SrcAlarms && f.Source != SrcSwitches {
		return fmt.Errorf("flag source must be 'alarms' or 'switches'")
	}
	if f.Byte < 0 {
		return fmt.Errorf("byte must be non-negative")
	}
	if f.Bit < 0 || f.Bit > 7 {
		return fmt.Errorf("bit must be between 0 and 7")
	}
	return nil
}

// Predicate is a named boolean derived from the frame.
type Predicate struct {
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
	Value  *int   `json:"value,omitempty"`
	Values []int  `json:"values,omitempty"`
	Flag   string `json:"flag,omitempty"`
	Byte   *int   `json:"byte,omitempty"`
	Bit    *int   `json:"bit,omitempty"`
}

func (p Predicate) validate() error {
	if !validKinds[p.Kind] {
		return fmt.Errorf("unsupported predicate kind: %s", p.Kind)
	}
	if p.Source != "" && !validSources[p.Source] {
		return fmt.Errorf("source must be one of %s", strings.Join(sortedKeys(validSources), ", "))
	}
	if p.Bit != nil && (*p.Bit < 0 || *p.Bit > 7) {
		return fmt.Errorf("bit must be between 0 and 7")
	}
	return nil
}

func (p Predicate) usesFlag() bool {
	return p.Kind == KindFlagTrue || p.Kind == KindFlagFalse
}

func (p Predicate) usesBitAddress() bool {
	return p.Kind == KindBitSet || p.Kind == KindBitClear
}

// Profile describes how to interpret a model's monitor frame.
type Profile struct {
	Flags      map[string]Flag           `json:"flags"`
	Enums      map[string]map[int]string `json:"enums"`
	Predicates map[string]Predicate      `json:"predicates"`
}

// Empty reports whether the profile defines nothing.
func (p Profile) Empty() bool {
	return len(p.Flags) == 0 && len(p.Enums) == 0 && len(p.Predicates) == 0
}

// AvailableFields lists flag and predicate names, sorted and deduplicated.
func (p Profile) AvailableFields() []string {
	set := make(map[string]bool, len(p.Flags)+len(p.Predicates))
	for name := range p.Flags {
		set[name] = true
	}
	for name := range p.Predicates {
		set[name] = true
	}
	return sortedKeys(set)
}

// Summary describes the profile's names.
type Summary struct {
	Flags      []string         `json:"flags"`
	Enums      map[string][]int `json:"enums"`
	Predicates []string         `json:"predicates"`
}

// Summary lists the defined names.
func (p Profile) Summary() Summary {
	s := Summary{
		Flags:      sortedKeys(p.Flags),
		Enums:      make(map[string][]int, len(p.Enums)),
		Predicates: sortedKeys(p.Predicates),
	}
	for name, mapping := range p.Enums {
		codes := make([]int, 0, len(mapping))
		for code := range mapping {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		s.Enums[name] = codes
	}
	return s
}

// ParseProfile builds a profile from a decoded document (JSON, YAML or TOML).
// A nil or empty document yields an empty profile.
func ParseProfile(doc map[string]any) (Profile, error) {
	p := Profile{
		Flags:      map[string]Flag{},
		Enums:      map[string]map[int]string{},
		Predicates: map[string]Predicate{},
	}
	if len(doc) == 0 {
		return p, nil
	}

	for name, raw := range asMap(doc["flags"]) {
		fd := asMap(raw)
		f := Flag{
			Source:      asString(fd["source"]),
			Invert:      asBool(fd["invert"]),
			Description: asString(fd["description"]),
		}
		f.Byte, _ = asInt(fd["byte"])
		f.Bit, _ = asInt(fd["bit"])
		if err := f.validate(); err != nil {
			return Profile{}, fmt.Errorf("%w: flag %q: %v", ErrInvalidProfile, name, err)
		}
		p.Flags[name] = f
	}

	for name, raw := range asMap(doc["predicates"]) {
		pd := asMap(raw)
		pr := Predicate{
			Kind:   asString(pd["kind"]),
			Source: asString(pd["source"]),
			Flag:   asString(pd["flag"]),
		}
		if v, ok := asInt(pd["value"]); ok {
			pr.Value = &v
		}
		if v, ok := asInt(pd["byte"]); ok {
			pr.Byte = &v
		}
		if v, ok := asInt(pd["bit"]); ok {
			pr.Bit = &v
		}
		for _, key := range []string{"values", "set", "in"} {
			if vals := asInts(pd[key]); len(vals) > 0 {
				pr.Values = vals
				break
			}
		}
		if err := pr.validate(); err != nil {
			return Profile{}, fmt.Errorf("%w: predicate %q: %v", ErrInvalidProfile, name, err)
		}
		p.Predicates[name] = pr
	}

	for name, raw := range asMap(doc["enums"]) {
		mapping := map[int]string{}
		for k, v := range asMap(raw) {
			code, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return Profile{}, fmt.Errorf("%w: enum %q: key %q is not an integer", ErrInvalidProfile, name, k)
			}
			mapping[code] = asString(v)
		}
		p.Enums[name] = mapping
	}
	return p, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func asInts(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if n, ok := asInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}
