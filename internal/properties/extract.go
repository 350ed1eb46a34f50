// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package properties

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/ManuGH/cremalink/internal/beverage"
	"github.com/ManuGH/cremalink/internal/ecam/recipe"
)

// Frame opcodes of the D0 property frames.
const (
	opProfileNames   = 0xA4F0
	opFavorites      = 0xACF0
	opRecipePriority = 0xA8F0
	opSetting        = 0x950F
	opActiveProfile  = 0x95F0
	opSerial         = 0xA10F
	opBeans          = 0xBAF0
)

const profileNameBlock = 22 // 11 UTF-16 code units

var (
	recipeName    = regexp.MustCompile(`d\d+_rec_`)
	counterName   = regexp.MustCompile(`^d7\d{2}.*_id(\d+)`)
	aggregateName = regexp.MustCompile(`^d7\d{2}_(.*)`)
	idSuffix      = regexp.MustCompile(`_id\d+`)
)

var maintenanceProps = []struct{ prefix, metric string }{
	{"d510", "grounds_container"},
	{"d512", "descale_progress"},
	{"d513", "water_filter"},
	{"d550", "water_since_descale"},
	{"d551", "grounds_count"},
	{"d552", "total_descale_cycles"},
	{"d553", "total_water_dispensed"},
	{"d554", "total_filter_replacements"},
	{"d555", "water_since_filter"},
	{"d556", "water_hardness_setting"},
}

var settingProps = []struct{ prefix, name string }{
	{"d281", "temperature"},
	{"d282", "auto_off"},
	{"d283", "water_hardness"},
}

var jsonCounterProps = []string{
	"d702_tot_bev_other",
	"d733_tot_bev_counters",
	"d734_tot_bev_usage",
	"d735_iced_bev",
	"d736_mug_bev",
	"d737_mug_iced_bev",
	"d738_cold_brew_bev",
	"d739_taste_bev",
	"d740_water_qty_bev",
}

// Recipes decodes every recipe property. profile filters to one profile
// when non-zero.
func (s *Snapshot) Recipes(profile int) []recipe.Snapshot {
	out := make([]recipe.Snapshot, 0)
	keep := func(r recipe.Snapshot) bool {
		return profile == 0 || (r.Profile != nil && *r.Profile == profile)
	}
	for _, e := range s.entries {
		value, ok := e.Value.(string)
		if !ok || value == "" || !recipeName.MatchString(e.Name) {
			continue
		}
		if strings.HasPrefix(value, "{") {
			for _, r := range recipe.DecodeContainer(value) {
				if keep(r) {
					out = append(out, r)
				}
			}
			continue
		}
		if r, ok := recipe.DecodeB64(value); ok && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Counters maps per-beverage counters (d7xx..._idN) to beverage names.
func (s *Snapshot) Counters() map[string]int {
	out := map[string]int{}
	for _, e := range s.entries {
		if e.Value == nil {
			continue
		}
		m := counterName.FindStringSubmatch(e.Name)
		if m == nil {
			continue
		}
		count, ok := toInt(e.Value)
		if !ok {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[beverage.NameOf(id)] = count
	}
	return out
}

// AggregateCounters returns the d7xx totals that are not per beverage, with
// the "tot_" prefix dropped from the label.
func (s *Snapshot) AggregateCounters() map[string]int {
	out := map[string]int{}
	for _, e := range s.entries {
		if e.Value == nil {
			continue
		}
		m := aggregateName.FindStringSubmatch(e.Name)
		if m == nil || idSuffix.MatchString(e.Name) {
			continue
		}
		count, ok := toInt(e.Value)
		if !ok {
			continue
		}
		out[strings.TrimPrefix(m[1], "tot_")] = count
	}
	return out
}

// ProfileNames returns user profile names. d051/d052 normally carry A4F0
// frames with UTF-16BE name blocks; plain-text values in d051..d054 are
// taken as the names of profiles 1..4.
func (s *Snapshot) ProfileNames() map[int]string {
	names := map[int]string{}
	for i, prefix := range []string{"d051", "d052", "d053", "d054"} {
		value, ok := s.stringWithPrefix(prefix)
		if !ok || value == "" {
			continue
		}
		opcode, payload, isFrame := d0Frame(value)
		if !isFrame {
			if name := strings.TrimSpace(value); name != "" {
				names[i+1] = name
			}
			continue
		}
		if opcode != opProfileNames || len(payload) < 4 {
			continue
		}
		first, last := int(payload[0]), int(payload[1])
		pos := 2
		for num := first; num <= last; num++ {
			if num > first && pos < len(payload) && payload[pos] == 0x0B {
				pos += 2
			}
			start := min(pos, len(payload))
			end := min(pos+profileNameBlock, len(payload))
			block := payload[start:end]
			pos = end
			if len(block) < 2 {
				continue
			}
			text := decodeUTF16(block, unicode.BigEndian)
			text, _, _ = strings.Cut(text, "\x00")
			text = strings.TrimRight(strings.TrimSpace(text), "\ufffd\uffff")
			if text != "" {
				names[num] = text
			}
		}
	}
	return names
}

// Maintenance returns the known maintenance metrics.
func (s *Snapshot) Maintenance() map[string]int {
	out := map[string]int{}
	for _, p := range maintenanceProps {
		if v, ok := s.anyWithPrefix(p.prefix); ok {
			if n, ok := toInt(v); ok {
				out[p.metric] = n
			}
		}
	}
	return out
}

func (s *Snapshot) beverageLists(base, opcode int) map[int][]string {
	out := map[int][]string{}
	for i := 1; i <= 4; i++ {
		value, ok := s.stringWithPrefix(fmt.Sprintf("d%d", base+i))
		if !ok || value == "" {
			continue
		}
		op, payload, ok := d0Frame(value)
		if !ok || op != opcode || len(payload) < 1 {
			continue
		}
		bevs := make([]string, 0, len(payload)-1)
		for _, id := range payload[1:] {
			if id != 0 {
				bevs = append(bevs, beverage.NameOf(int(id)))
			}
		}
		if len(bevs) > 0 {
			out[int(payload[0])] = bevs
		}
	}
	return out
}

// Favorites lists favourite beverages per profile (d265..d268).
func (s *Snapshot) Favorites() map[int][]string {
	return s.beverageLists(264, opFavorites)
}

// RecipePriority lists the on-screen beverage order per profile (d261..d264).
func (s *Snapshot) RecipePriority() map[int][]string {
	return s.beverageLists(260, opRecipePriority)
}

// MachineSettings returns temperature, auto_off and water_hardness.
// Payload layout: 00 <param> 00 00 00 <value>.
func (s *Snapshot) MachineSettings() map[string]int {
	out := map[string]int{}
	for _, p := range settingProps {
		value, ok := s.stringWithPrefix(p.prefix)
		if !ok || value == "" {
			continue
		}
		op, payload, ok := d0Frame(value)
		if !ok || op != opSetting || len(payload) < 6 {
			continue
		}
		out[p.name] = int(payload[5])
	}
	return out
}

// ActiveProfile returns the selected profile (d286).
func (s *Snapshot) ActiveProfile() (int, bool) {
	value, ok := s.stringWithPrefix("d286")
	if !ok || value == "" {
		return 0, false
	}
	op, payload, ok := d0Frame(value)
	if !ok || op != opActiveProfile || len(payload) < 1 {
		return 0, false
	}
	return int(payload[0]), true
}

// SerialNumber returns the machine serial (d270). Payload layout:
// 00 <marker> <ascii...> 00.
func (s *Snapshot) SerialNumber() (string, bool) {
	value, ok := s.stringWithPrefix("d270")
	if !ok || value == "" {
		return "", false
	}
	op, payload, ok := d0Frame(value)
	if !ok || op != opSerial || len(payload) < 3 {
		return "", false
	}
	serial := payload[2:]
	if i := bytes.IndexByte(serial, 0); i >= 0 {
		serial = serial[:i]
	}
	for _, b := range serial {
		if b >= utf8.RuneSelf {
			return "", false
		}
	}
	return string(serial), true
}

// BeanSystem returns the primary bean name per slot (d250..d256).
func (s *Snapshot) BeanSystem() map[int]string {
	out := map[int]string{}
	for i := 0; i < 7; i++ {
		value, ok := s.stringWithPrefix(fmt.Sprintf("d%d", 250+i))
		if !ok || value == "" {
			continue
		}
		op, payload, ok := d0Frame(value)
		if !ok || op != opBeans || len(payload) < 3 {
			continue
		}
		text := decodeUTF16(payload[2:], unicode.LittleEndian)
		name, _, _ := strings.Cut(text, "\x00")
		name = strings.TrimSpace(name)
		if name != "" && name != "\ufffd" {
			out[int(payload[0])] = name
		}
	}
	return out
}

// ServiceParameters merges the JSON objects in d580 and d581. Integer-like
// values are converted.
func (s *Snapshot) ServiceParameters() map[string]any {
	out := map[string]any{}
	for _, prefix := range []string{"d580", "d581"} {
		value, ok := s.stringWithPrefix(prefix)
		if !ok || value == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			continue
		}
		for k, v := range doc {
			if n, ok := toInt(v); ok {
				out[k] = n
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// JSONCounters flattens the JSON-valued counter properties.
func (s *Snapshot) JSONCounters() map[string]int {
	out := map[string]int{}
	for _, name := range jsonCounterProps {
		for _, e := range s.entries {
			if e.Name != name {
				continue
			}
			value, ok := e.Value.(string)
			if !ok || value == "" {
				break
			}
			var doc map[string]any
			if err := json.Unmarshal([]byte(value), &doc); err != nil {
				break
			}
			for k, v := range doc {
				if n, ok := toInt(v); ok {
					out[k] = n
				}
			}
			break
		}
	}
	return out
}

// SoftwareVersion returns the firmware version string.
func (s *Snapshot) SoftwareVersion() (string, bool) {
	for _, e := range s.entries {
		if e.Name == "software_version" {
			if v, ok := e.Value.(string); ok && v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func decodeUTF16(b []byte, order unicode.Endianness) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out, err := unicode.UTF16(order, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// Summary is every extractor's result in one document.
type Summary struct {
	SoftwareVersion   string            `json:"software_version,omitempty"`
	SerialNumber      string            `json:"serial_number,omitempty"`
	ActiveProfile     *int              `json:"active_profile,omitempty"`
	ProfileNames      map[int]string    `json:"profile_names"`
	MachineSettings   map[string]int    `json:"machine_settings"`
	Maintenance       map[string]int    `json:"maintenance"`
	Counters          map[string]int    `json:"counters"`
	AggregateCounters map[string]int    `json:"aggregate_counters"`
	JSONCounters      map[string]int    `json:"json_counters"`
	Favorites         map[int][]string  `json:"favorites"`
	RecipePriority    map[int][]string  `json:"recipe_priority"`
	BeanSystem        map[int]string    `json:"bean_system"`
	ServiceParameters map[string]any    `json:"service_parameters"`
	Recipes           []recipe.Snapshot `json:"recipes"`
}

// Summarize runs all extractors.
func (s *Snapshot) Summarize() Summary {
	sum := Summary{
		ProfileNames:      s.ProfileNames(),
		MachineSettings:   s.MachineSettings(),
		Maintenance:       s.Maintenance(),
		Counters:          s.Counters(),
		AggregateCounters: s.AggregateCounters(),
		JSONCounters:      s.JSONCounters(),
		Favorites:         s.Favorites(),
		RecipePriority:    s.RecipePriority(),
		BeanSystem:        s.BeanSystem(),
		ServiceParameters: s.ServiceParameters(),
		Recipes:           s.Recipes(0),
	}
	sum.SoftwareVersion, _ = s.SoftwareVersion()
	sum.SerialNumber, _ = s.SerialNumber()
	if p, ok := s.ActiveProfile(); ok {
		sum.ActiveProfile = &p
	}
	return sum
}
