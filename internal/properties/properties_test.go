// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package properties

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
	"github.com/ManuGH/cremalink/internal/ecam/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prop(name string, value any) map[string]any {
	return map[string]any{"property": map[string]any{"name": name, "value": value}}
}

func d0(opcode int, payload ...byte) string {
	body := append([]byte{byte(opcode >> 8), byte(opcode)}, payload...)
	frame := append([]byte{0xD0, byte(2 + len(body) + 2)}, body...)
	return base64.StdEncoding.EncodeToString(ecam.AppendCRC(frame))
}

func utf16be(s string, size int) []byte {
	out := make([]byte, size)
	for i, r := range s {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func utf16le(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func snapshot(entries map[string]any) *Snapshot {
	return New(entries, time.Now().UTC())
}

func TestGet(t *testing.T) {
	s := snapshot(map[string]any{
		"p1":          prop("d302_monitor", "AAAA"),
		"direct_name": map[string]any{"value": 3},
	})

	v, ok := s.Get("direct_name")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 3}, v)

	v, ok = s.Get("d302_monitor")
	require.True(t, ok)
	assert.Equal(t, prop("d302_monitor", "AAAA"), v)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	val, ok := s.Value("d302_monitor")
	require.True(t, ok)
	assert.Equal(t, "AAAA", val)
}

func TestRecipes(t *testing.T) {
	p1 := d0(0xA6F0, 1, 0x01, 0x01, 0x00, 0x24)
	p2 := d0(0xA6F0, 2, 0x01, 0x01, 0x00, 0x30)
	def := d0(0xB0F0, 0x01, 0x01, 0x00)
	container, _ := json.Marshal(map[string]string{"espresso": def})

	s := snapshot(map[string]any{
		"a": prop("d059_rec_espresso_p1", p1),
		"b": prop("d060_rec_espresso_p2", p2),
		"c": prop("d002_rec_defaults", string(container)),
		"d": prop("d250_beans_type", "2"),
		"e": prop("d302_monitor_machine", "AAAA"),
	})

	all := s.Recipes(0)
	require.Len(t, all, 3)
	assert.Equal(t, recipe.FormatProfile, all[0].Format)
	assert.Equal(t, recipe.FormatDefault, all[2].Format)

	only1 := s.Recipes(1)
	require.Len(t, only1, 1)
	assert.Equal(t, 1, *only1[0].Profile)
	assert.Equal(t, 0x24, only1[0].Params[0x01])

	only2 := s.Recipes(2)
	require.Len(t, only2, 1)
	assert.Equal(t, 0x30, only2[0].Params[0x01])

	assert.Empty(t, snapshot(map[string]any{"d": prop("d250_beans_type", "2")}).Recipes(0))
}

func TestCounters(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d705_tot_id1_espr", "12"),
		"b": prop("d709_id6_americano", 4.0),
		"c": prop("d790_id250_x", 1),
		"d": prop("d710_id7_cap", "n/a"),
		"e": prop("d701_tot_bev_b", "99"),
		"f": prop("d705_id2_coffee", nil),
	})
	assert.Equal(t, map[string]int{"espresso": 12, "americano": 4, "unknown_0xfa": 1}, s.Counters())
}

func TestAggregateCounters(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d701_tot_bev_b", "99"),
		"b": prop("d704_tot_bev_espressi", 10),
		"c": prop("d705_tot_id1_espr", "12"),
		"d": prop("d733_tot_bev_counters", `{"x":"1"}`),
		"e": prop("d301_status", 1),
	})
	assert.Equal(t, map[string]int{"bev_b": 99, "bev_espressi": 10}, s.AggregateCounters())
}

func TestProfileNames_PlainText(t *testing.T) {
	s := snapshot(map[string]any{
		"p1": prop("d051", "Bartek"),
		"p2": prop("d052", "Anita"),
		"p3": prop("d053", "Explorer 3"),
		"p4": prop("d054", "Explorer 4"),
	})
	assert.Equal(t, map[int]string{1: "Bartek", 2: "Anita", 3: "Explorer 3", 4: "Explorer 4"}, s.ProfileNames())

	assert.Equal(t, map[int]string{1: "Alice"}, snapshot(map[string]any{"p1": prop("d051", "Alice")}).ProfileNames())
	assert.Empty(t, snapshot(nil).ProfileNames())
}

func TestProfileNames_Frames(t *testing.T) {
	payload := []byte{1, 3}
	payload = append(payload, utf16be("Anna", 22)...)
	payload = append(payload, 0x0B, 2)
	payload = append(payload, utf16be("Marco", 22)...)
	payload = append(payload, 0x0B, 3)
	payload = append(payload, utf16be("Guest", 22)...)

	s := snapshot(map[string]any{
		"a": prop("d051_profile_name1_3", d0(0xA4F0, payload...)),
		"b": prop("d052_profile_name4", d0(0xA4F0, append([]byte{4, 4}, utf16be("Lia", 22)...)...)),
	})
	assert.Equal(t, map[int]string{1: "Anna", 2: "Marco", 3: "Guest", 4: "Lia"}, s.ProfileNames())
}

func TestMaintenance(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d510_ground_cnt_percentage", 40.0),
		"b": prop("d512_percentage_to_deca", "75"),
		"c": prop("d550_water_calc_qty", "1200"),
		"d": prop("d556_water_hardness", "bad"),
	})
	assert.Equal(t, map[string]int{
		"grounds_container":   40,
		"descale_progress":    75,
		"water_since_descale": 1200,
	}, s.Maintenance())
}

func TestFavoritesAndPriority(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d265_fav_p1", d0(0xACF0, 1, 0x01, 0x07, 0x00, 0xFE)),
		"b": prop("d266_fav_p2", d0(0xACF0, 2, 0x00)),
		"c": prop("d261_prio_p1", d0(0xA8F0, 1, 0x02, 0x01)),
		"d": prop("d262_prio_p2", d0(0xACF0, 2, 0x02)),
	})
	assert.Equal(t, map[int][]string{1: {"espresso", "cappuccino", "unknown_0xfe"}}, s.Favorites())
	assert.Equal(t, map[int][]string{1: {"coffee", "espresso"}}, s.RecipePriority())
}

func TestMachineSettings(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d281_temp", d0(0x950F, 0x00, 0x3D, 0x00, 0x00, 0x00, 0x02)),
		"b": prop("d282_auto_off", d0(0x950F, 0x00, 0x3E, 0x00, 0x00, 0x00, 0x03)),
		"c": prop("d283_hardness", d0(0x950F, 0x00, 0x32)),
	})
	assert.Equal(t, map[string]int{"temperature": 2, "auto_off": 3}, s.MachineSettings())
}

func TestActiveProfile(t *testing.T) {
	p, ok := snapshot(map[string]any{"a": prop("d286_mach_sett_profile", d0(0x95F0, 3, 0x00))}).ActiveProfile()
	require.True(t, ok)
	assert.Equal(t, 3, p)

	_, ok = snapshot(map[string]any{"a": prop("d286_mach_sett_profile", d0(0x950F, 3))}).ActiveProfile()
	assert.False(t, ok)
}

func TestSerialNumber(t *testing.T) {
	s := snapshot(map[string]any{"a": prop("d270_serialnumber", d0(0xA10F, 0x00, 0x01, 'S', 'N', '1', '2', '3', 0x00, 'x'))})
	serial, ok := s.SerialNumber()
	require.True(t, ok)
	assert.Equal(t, "SN123", serial)

	_, ok = snapshot(map[string]any{"a": prop("d270_serialnumber", d0(0xA10F, 0x00, 0x01, 0xC3))}).SerialNumber()
	assert.False(t, ok)
}

func TestBeanSystem(t *testing.T) {
	slot2 := append([]byte{2, 0x00}, utf16le("Arabica")...)
	slot2 = append(slot2, 0x00, 0x00)
	slot2 = append(slot2, utf16le("Alt")...)

	s := snapshot(map[string]any{
		"a": prop("d252_bean_2", d0(0xBAF0, slot2...)),
		"b": prop("d253_bean_3", d0(0xBAF0, 3, 0x00, 0x00, 0x00)),
	})
	assert.Equal(t, map[int]string{2: "Arabica"}, s.BeanSystem())
}

func TestServiceParameters(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d580_service_parameters", `{"p1":"12","p2":"abc"}`),
		"b": prop("d581_service_parameters", `{"p3":4}`),
		"c": prop("d582", `{"ignored":1}`),
	})
	assert.Equal(t, map[string]any{"p1": 12, "p2": "abc", "p3": 4}, s.ServiceParameters())
}

func TestJSONCounters(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("d733_tot_bev_counters", `{"espresso":"5","bad":"x"}`),
		"b": prop("d740_water_qty_bev", `{"water":"250"}`),
		"c": prop("d735_iced_bev", `not json`),
	})
	assert.Equal(t, map[string]int{"espresso": 5, "water": 250}, s.JSONCounters())
}

func TestSoftwareVersionAndSummary(t *testing.T) {
	s := snapshot(map[string]any{
		"a": prop("software_version", "1.2.3"),
		"b": prop("d286_mach_sett_profile", d0(0x95F0, 2)),
	})
	v, ok := s.SoftwareVersion()
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v)

	sum := s.Summarize()
	assert.Equal(t, "1.2.3", sum.SoftwareVersion)
	require.NotNil(t, sum.ActiveProfile)
	assert.Equal(t, 2, *sum.ActiveProfile)
	assert.Empty(t, sum.Recipes)

	_, err := json.Marshal(sum)
	assert.NoError(t, err)
}
