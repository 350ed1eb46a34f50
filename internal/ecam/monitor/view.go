// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package monitor

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
)

// View interprets a snapshot through a profile. Accessors report ok=false
// when the snapshot has no decodable frame or the profile cannot answer.
type View struct {
	snap    Snapshot
	profile Profile
	frame   *Frame
}

// NewView binds a snapshot to a profile, decoding the frame if the snapshot
// did not carry one.
func NewView(snap Snapshot, profile Profile) *View {
	v := &View{snap: snap, profile: profile, frame: snap.Frame}
	if v.frame == nil && snap.RawB64 != "" {
		if f, err := DecodeB64(snap.RawB64); err == nil {
			v.frame = f
		}
	}
	return v
}

func (v *View) Snapshot() Snapshot        { return v.snap }
func (v *View) Profile() Profile          { return v.profile }
func (v *View) Raw() []byte               { return v.snap.Raw }
func (v *View) RawB64() string            { return v.snap.RawB64 }
func (v *View) Parsed() map[string]any    { return v.snap.Parsed }
func (v *View) ReceivedAt() time.Time     { return v.snap.ReceivedAt }
func (v *View) AvailableFields() []string { return v.profile.AvailableFields() }
func (v *View) ProfileSummary() Summary   { return v.profile.Summary() }

// StatusCode returns the machine status byte.
func (v *View) StatusCode() (int, bool) {
	if v.frame == nil {
		return 0, false
	}
	return int(v.frame.Status), true
}

// ActionCode returns the current action byte.
func (v *View) ActionCode() (int, bool) {
	if v.frame == nil {
		return 0, false
	}
	return int(v.frame.Action), true
}

// ProgressPercent returns the progress byte.
func (v *View) ProgressPercent() (int, bool) {
	if v.frame == nil {
		return 0, false
	}
	return int(v.frame.Progress), true
}

// AccessoryCode returns the fitted accessory byte.
func (v *View) AccessoryCode() (int, bool) {
	if v.frame == nil {
		return 0, false
	}
	return int(v.frame.Accessory), true
}

func (v *View) enumLookup(enum string, code int, ok bool) (string, bool) {
	if !ok {
		return "", false
	}
	if name, found := v.profile.Enums[enum][code]; found {
		return name, true
	}
	return strconv.Itoa(code), true
}

// StatusName maps the status code through the "status" enum.
func (v *View) StatusName() (string, bool) {
	code, ok := v.StatusCode()
	return v.enumLookup(SrcStatus, code, ok)
}

// ActionName maps the action code through the "action" enum.
func (v *View) ActionName() (string, bool) {
	code, ok := v.ActionCode()
	return v.enumLookup(SrcAction, code, ok)
}

// AccessoryName maps the accessory code through the "accessory" enum.
func (v *View) AccessoryName() (string, bool) {
	code, ok := v.AccessoryCode()
	return v.enumLookup(SrcAccessory, code, ok)
}

func (v *View) bytesFor(source string) []byte {
	if source == SrcAlarms {
		return v.frame.Alarms
	}
	return v.frame.Switches
}

// Flag resolves a named flag.
func (v *View) Flag(name string) (bool, bool) {
	if v.frame == nil {
		return false, false
	}
	def, ok := v.profile.Flags[name]
	if !ok {
		return false, false
	}
	data := v.bytesFor(def.Source)
	if def.Byte >= len(data) {
		return false, false
	}
	set, err := ecam.Bit(data[def.Byte], def.Bit)
	if err != nil {
		return false, false
	}
	return set != def.Invert, true
}

func (v *View) sourceScalar(source string) (int, bool) {
	if v.frame == nil {
		return 0, false
	}
	switch source {
	case SrcStatus:
		return int(v.frame.Status), true
	case SrcAction:
		return int(v.frame.Action), true
	case SrcProgress:
		return int(v.frame.Progress), true
	case SrcAccessory:
		return int(v.frame.Accessory), true
	}
	return 0, false
}

// Predicate evaluates a named predicate.
func (v *View) Predicate(name string) (bool, bool) {
	def, ok := v.profile.Predicates[name]
	if !ok {
		return false, false
	}
	return v.evaluate(def)
}

func (v *View) evaluate(def Predicate) (bool, bool) {
	switch {
	case def.usesFlag():
		val, ok := v.Flag(def.Flag)
		if !ok {
			return false, false
		}
		return val == (def.Kind == KindFlagTrue), true

	case def.usesBitAddress():
		if v.frame == nil || def.Source == "" || def.Byte == nil || def.Bit == nil {
			return false, false
		}
		data := v.bytesFor(def.Source)
		if *def.Byte >= len(data) || *def.Byte < 0 {
			return false, false
		}
		set, err := ecam.Bit(data[*def.Byte], *def.Bit)
		if err != nil {
			return false, false
		}
		return set == (def.Kind == KindBitSet), true
	}

	// Byte-array sources never equal a scalar; a missing frame compares as absent.
	val, present := v.sourceScalar(def.Source)
	switch def.Kind {
	case KindEquals:
		return present && def.Value != nil && val == *def.Value, true
	case KindNotEquals:
		return !(present && def.Value != nil && val == *def.Value), true
	case KindInSet:
		return present && slices.Contains(def.Values, val), true
	case KindNotInSet:
		return !(present && slices.Contains(def.Values, val)), true
	}
	return false, false
}

// Field resolves a flag or predicate by name.
func (v *View) Field(name string) (bool, bool, error) {
	if _, ok := v.profile.Flags[name]; ok {
		val, ok := v.Flag(name)
		return val, ok, nil
	}
	if _, ok := v.profile.Predicates[name]; ok {
		val, ok := v.Predicate(name)
		return val, ok, nil
	}
	return false, false, fmt.Errorf("monitor: no field %q", name)
}

// Fields evaluates every flag and predicate; indeterminable ones are nil.
func (v *View) Fields() map[string]*bool {
	out := make(map[string]*bool)
	for _, name := range v.AvailableFields() {
		val, ok, err := v.Field(name)
		if err != nil || !ok {
			out[name] = nil
			continue
		}
		b := val
		out[name] = &b
	}
	return out
}

// Report is the JSON shape used by the CLI and control API.
type Report struct {
	ReceivedAt    time.Time        `json:"received_at"`
	Source        string           `json:"source"`
	DeviceID      string           `json:"device_id,omitempty"`
	RawB64        string           `json:"raw_b64"`
	Status        *int             `json:"status"`
	StatusName    string           `json:"status_name,omitempty"`
	Action        *int             `json:"action"`
	ActionName    string           `json:"action_name,omitempty"`
	Progress      *int             `json:"progress"`
	Accessory     *int             `json:"accessory"`
	AccessoryName string           `json:"accessory_name,omitempty"`
	Fields        map[string]*bool `json:"fields"`
	Warnings      []string         `json:"warnings"`
	Errors        []string         `json:"errors"`
}

// Report renders the view for output.
func (v *View) Report() Report {
	r := Report{
		ReceivedAt: v.snap.ReceivedAt,
		Source:     v.snap.Source,
		DeviceID:   v.snap.DeviceID,
		RawB64:     v.snap.RawB64,
		Fields:     v.Fields(),
		Warnings:   v.snap.Warnings,
		Errors:     v.snap.Errors,
	}
	if c, ok := v.StatusCode(); ok {
		r.Status = &c
		r.StatusName, _ = v.StatusName()
	}
	if c, ok := v.ActionCode(); ok {
		r.Action = &c
		r.ActionName, _ = v.ActionName()
	}
	if c, ok := v.ProgressPercent(); ok {
		r.Progress = &c
	}
	if c, ok := v.AccessoryCode(); ok {
		r.Accessory = &c
		r.AccessoryName, _ = v.AccessoryName()
	}
	return r
}
