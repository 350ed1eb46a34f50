// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recipe decodes the D0 recipe frames the machine stores in its
// cloud properties.
package recipe

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ManuGH/cremalink/internal/ecam"
	"github.com/ManuGH/cremalink/internal/ecam/tlv"
)

const (
	marker = 0xD0

	cmdProfile = 0xA6F0
	cmdDefault = 0xB0F0
)

// Recipe formats.
const (
	FormatProfile = "profile"
	FormatDefault = "default"
	FormatUnknown = "unknown"
)

// Snapshot is one decoded recipe.
type Snapshot struct {
	Format      string         `json:"format"`
	Beverage    int            `json:"bev_id"`
	Profile     *int           `json:"profile,omitempty"`
	Params      tlv.Params     `json:"-"`
	NamedParams map[string]int `json:"params,omitempty"`
	CRCOK       bool           `json:"crc_ok"`
	RawHex      string         `json:"raw_hex"`
}

// DecodeB64 decodes a single recipe value. ok is false when the value is not
// a recipe frame.
//
//	profile: D0 len A6 F0 profile bev <tlv...> crc
//	default: D0 len B0 F0 bev <params...> crc
func DecodeB64(b64 string) (Snapshot, bool) {
	raw, err := ecam.DecodeB64(b64)
	if err != nil || len(raw) < 6 || raw[0] != marker {
		return Snapshot{}, false
	}

	end := min(int(raw[1])+1, len(raw))
	crcOK := ecam.CheckCRC(raw[:end])
	cmd := int(raw[2])<<8 | int(raw[3])
	rawHex := hex.EncodeToString(raw)

	switch cmd {
	case cmdProfile:
		profile := int(raw[4])
		var params tlv.Params
		if end-2 > 6 {
			params = tlv.Parse(raw[6 : end-2])
		} else {
			params = tlv.Params{}
		}
		return Snapshot{
			Format:      FormatProfile,
			Beverage:    int(raw[5]),
			Profile:     &profile,
			Params:      params,
			NamedParams: tlv.Named(params),
			CRCOK:       crcOK,
			RawHex:      rawHex,
		}, true
	case cmdDefault:
		return Snapshot{
			Format:      FormatDefault,
			Beverage:    int(raw[4]),
			Params:      tlv.Params{},
			NamedParams: map[string]int{},
			CRCOK:       crcOK,
			RawHex:      rawHex,
		}, true
	}
	return Snapshot{
		Format:      FormatUnknown,
		Params:      tlv.Params{},
		NamedParams: map[string]int{},
		RawHex:      rawHex,
	}, true
}

// DecodeContainer decodes a JSON object whose string values are recipe
// frames, in key order. Entries that are not recipes are skipped.
func DecodeContainer(doc string) []Snapshot {
	var container map[string]any
	if err := json.Unmarshal([]byte(doc), &container); err != nil {
		return []Snapshot{}
	}
	keys := make([]string, 0, len(container))
	for k := range container {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		s, ok := container[k].(string)
		if !ok {
			continue
		}
		if snap, ok := DecodeB64(s); ok {
			out = append(out, snap)
		}
	}
	return out
}
