// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tlv encodes the tag/value parameter block carried by ECAM brew
// commands and recipe frames. Volume tags carry 2-byte big-endian values,
// every other tag a single byte.
package tlv

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Known parameter tags.
const (
	TagCoffeeML    byte = 0x01
	TagTemperature byte = 0x02
	TagDoubleShot  byte = 0x08
	TagMilkML      byte = 0x09
	TagFoamLevel   byte = 0x0B
	TagMilkFirst   byte = 0x0C
	TagWaterML     byte = 0x0F
	TagPreBrew     byte = 0x18
	TagAroma       byte = 0x19
	TagTaste       byte = 0x1B
	TagMilkTemp    byte = 0x1C
	TagRecipeType  byte = 0x1E
	TagMyEnabled   byte = 0x20
	TagMyLevel     byte = 0x21
	TagMilkCircuit byte = 0x23
	TagIceAmount   byte = 0x24
	TagCupsCount   byte = 0x25
	TagBatchMode   byte = 0x26
	TagGrinder     byte = 0x27
)

// Params maps a parameter tag to its value.
type Params map[byte]int

var names = map[byte]string{
	TagCoffeeML:    "coffee_ml",
	TagTemperature: "temperature",
	TagDoubleShot:  "double_shot",
	TagMilkML:      "milk_ml",
	TagFoamLevel:   "foam_level",
	TagMilkFirst:   "milk_first",
	TagWaterML:     "water_ml",
	TagPreBrew:     "pre_brew",
	TagAroma:       "aroma",
	TagTaste:       "taste",
	TagMilkTemp:    "milk_temp",
	TagRecipeType:  "recipe_type",
	TagMyEnabled:   "my_enabled",
	TagMyLevel:     "my_level",
	TagMilkCircuit: "milk_circuit",
	TagIceAmount:   "ice_amount",
	TagCupsCount:   "cups_count",
	TagBatchMode:   "batch_mode",
	TagGrinder:     "grinder",
}

var tags = func() map[string]byte {
	m := make(map[string]byte, len(names))
	for tag, name := range names {
		m[name] = tag
	}
	return m
}()

// canonicalOrder is the order the machine firmware writes parameters in.
var canonicalOrder = []byte{
	TagFoamLevel, TagMilkFirst, TagMilkTemp, TagAroma, TagCoffeeML, TagWaterML,
	TagTaste, TagTemperature, TagDoubleShot, TagPreBrew, TagRecipeType,
	TagMyEnabled, TagMyLevel, TagMilkCircuit, TagIceAmount, TagCupsCount,
	TagBatchMode, TagGrinder, TagMilkML,
}

var canonicalIndex = func() map[byte]int {
	m := make(map[byte]int, len(canonicalOrder))
	for i, tag := range canonicalOrder {
		m[tag] = i
	}
	return m
}()

// IsTwoByte reports whether tag carries a 16-bit value.
func IsTwoByte(tag byte) bool {
	return tag == TagCoffeeML || tag == TagMilkML || tag == TagWaterML
}

// Name returns the readable name of tag, or its hex form when unknown.
func Name(tag byte) string {
	if n, ok := names[tag]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", tag)
}

// TagByName resolves a readable parameter name.
func TagByName(name string) (byte, bool) {
	tag, ok := tags[name]
	return tag, ok
}

// Parse decodes a TLV block. A truncated trailing entry ends decoding;
// entries before it are kept.
func Parse(data []byte) Params {
	params := Params{}
	i := 0
	for i < len(data) {
		tag := data[i]
		i++
		if IsTwoByte(tag) {
			if i+1 >= len(data) {
				break
			}
			params[tag] = int(binary.BigEndian.Uint16(data[i : i+2]))
			i += 2
			continue
		}
		if i >= len(data) {
			break
		}
		params[tag] = int(data[i])
		i++
	}
	return params
}

// Ordered returns the tags of p in encoding order: canonical tags first,
// the rest ascending.
func (p Params) Ordered() []byte {
	known := make([]byte, 0, len(p))
	extra := make([]byte, 0)
	for tag := range p {
		if _, ok := canonicalIndex[tag]; ok {
			known = append(known, tag)
		} else {
			extra = append(extra, tag)
		}
	}
	sort.Slice(known, func(i, j int) bool { return canonicalIndex[known[i]] < canonicalIndex[known[j]] })
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(known, extra...)
}

// Encode writes p in canonical order, masking values to their width.
func Encode(p Params) []byte {
	buf := make([]byte, 0, len(p)*3)
	for _, tag := range p.Ordered() {
		v := p[tag]
		if IsTwoByte(tag) {
			buf = append(buf, tag, byte(v>>8), byte(v))
		} else {
			buf = append(buf, tag, byte(v))
		}
	}
	return buf
}

// Named translates tag keys to readable names.
func Named(p Params) map[string]int {
	out := make(map[string]int, len(p))
	for tag, v := range p {
		out[Name(tag)] = v
	}
	return out
}

// FromNamed resolves readable names back to tags. Unknown names are reported.
func FromNamed(named map[string]int) (Params, error) {
	p := make(Params, len(named))
	for name, v := range named {
		tag, ok := TagByName(name)
		if !ok {
			return nil, fmt.Errorf("tlv: unknown parameter %q", name)
		}
		p[tag] = v
	}
	return p, nil
}

// Merge returns a copy of p with overrides applied.
func (p Params) Merge(overrides Params) Params {
	out := make(Params, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
