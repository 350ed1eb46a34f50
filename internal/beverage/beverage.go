// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package beverage is the catalog of ECAM beverage ids.
package beverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Category groups beverages.
type Category string

const (
	BlackCoffee Category = "black_coffee"
	MilkCoffee  Category = "milk_coffee"
	HotOther    Category = "hot_other"
	Iced        Category = "iced"
	My          Category = "my"
	MyIced      Category = "my_iced"
	Carafe      Category = "carafe"
	Special     Category = "special"
)

// Info describes one beverage.
type Info struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Category    Category `json:"category"`
	HasMilk     bool     `json:"has_milk"`
}

var table = []Info{
	{0x01, "espresso", "Espresso", BlackCoffee, false},
	{0x02, "coffee", "Coffee", BlackCoffee, false},
	{0x03, "long_coffee", "Long Coffee", BlackCoffee, false},
	{0x04, "double_espresso", "Double Espresso", BlackCoffee, false},
	{0x05, "doppio_plus", "Doppio+", BlackCoffee, false},
	{0x06, "americano", "Americano", BlackCoffee, false},
	{0x07, "cappuccino", "Cappuccino", MilkCoffee, true},
	{0x08, "latte_macchiato", "Latte Macchiato", MilkCoffee, true},
	{0x09, "caffe_latte", "Caffe Latte", MilkCoffee, true},
	{0x0A, "flat_white", "Flat White", MilkCoffee, true},
	{0x0B, "espresso_macchiato", "Espresso Macchiato", MilkCoffee, true},
	{0x0C, "hot_milk", "Hot Milk", HotOther, true},
	{0x0D, "cappuccino_doppio_plus", "Cappuccino Doppio+", MilkCoffee, true},
	{0x0F, "cappuccino_mix", "Cappuccino Mix", MilkCoffee, true},
	{0x10, "hot_water", "Hot Water", HotOther, false},
	{0x16, "tea", "Tea", HotOther, false},
	{0x17, "coffee_pot", "Coffee Pot", HotOther, false},
	{0x18, "cortado", "Cortado", MilkCoffee, true},
	{0x1B, "brew_over_ice", "Brew Over Ice", Iced, false},
	{0x32, "iced_americano", "Iced Americano", Iced, false},
	{0x33, "iced_cappuccino", "Iced Cappuccino", Iced, true},
	{0x34, "iced_latte_macchiato", "Iced Latte Macchiato", Iced, true},
	{0x35, "iced_cappuccino_mix", "Iced Cappuccino Mix", Iced, true},
	{0x36, "iced_flat_white", "Iced Flat White", Iced, true},
	{0x37, "iced_cold_milk", "Iced Cold Milk", Iced, true},
	{0x38, "iced_caffe_latte", "Iced Caffe Latte", Iced, true},
	{0x39, "over_ice_espresso", "Over Ice Espresso", Iced, false},
	{0x50, "my_americano", "My Americano", My, false},
	{0x51, "my_cappuccino", "My Cappuccino", My, true},
	{0x52, "my_latte_macchiato", "My Latte Macchiato", My, true},
	{0x53, "my_caffe_latte", "My Caffe Latte", My, true},
	{0x54, "my_cappuccino_mix", "My Cappuccino Mix", My, true},
	{0x55, "my_flat_white", "My Flat White", My, true},
	{0x56, "my_hot_milk", "My Hot Milk", My, true},
	{0x64, "my_iced_over_ice", "My Iced Over Ice", MyIced, false},
	{0x65, "my_iced_americano", "My Iced Americano", MyIced, false},
	{0x66, "my_iced_cappuccino", "My Iced Cappuccino", MyIced, true},
	{0x67, "my_iced_latte_macchiato", "My Iced Latte Macchiato", MyIced, true},
	{0x68, "my_iced_caffe_latte", "My Iced Caffe Latte", MyIced, true},
	{0x69, "my_iced_cappuccino_mix", "My Iced Cappuccino Mix", MyIced, true},
	{0x6A, "my_iced_flat_white", "My Iced Flat White", MyIced, true},
	{0x6B, "my_iced_cold_milk", "My Iced Cold Milk", MyIced, true},
	{0x78, "carafe_coffee", "Carafe Coffee", Carafe, false},
	{0x79, "carafe_coffee_espresso", "Carafe Coffee Espresso", Carafe, false},
	{0x7A, "carafe_coffee_pot", "Carafe Coffee Pot", Carafe, false},
	{0x7B, "carafe_latte", "Carafe Latte", Carafe, true},
	{0x7C, "carafe_cappuccino", "Carafe Cappuccino", Carafe, true},
	{0x8C, "carafe_mug", "Carafe Mug", Carafe, false},
	{0x8D, "carafe_latte_mug", "Carafe Latte Mug", Carafe, true},
	{0x8E, "carafe_cappuccino_mug", "Carafe Cappuccino Mug", Carafe, true},
	{0xC8, "barista_special", "Barista Special", Special, false},
	{0xE6, "custom_1", "Custom 1", Special, false},
	{0xE7, "custom_2", "Custom 2", Special, false},
	{0xE8, "custom_3", "Custom 3", Special, false},
	{0xE9, "custom_4", "Custom 4", Special, false},
	{0xEA, "custom_5", "Custom 5", Special, false},
	{0xEB, "custom_6", "Custom 6", Special, false},
}

var (
	byID   = make(map[int]Info, len(table))
	byName = make(map[string]Info, len(table))
)

func init() {
	for _, b := range table {
		byID[b.ID] = b
		byName[b.Name] = b
	}
}

// ByID looks a beverage up by protocol id.
func ByID(id int) (Info, bool) {
	b, ok := byID[id]
	return b, ok
}

// ByName looks a beverage up by snake_case name, ignoring case and
// surrounding whitespace.
func ByName(name string) (Info, bool) {
	b, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// Resolve accepts a name, a decimal id or a 0x-prefixed hex id.
func Resolve(ref string) (Info, bool) {
	if b, ok := ByName(ref); ok {
		return b, true
	}
	id, err := strconv.ParseInt(strings.TrimSpace(strings.ToLower(ref)), 0, 32)
	if err != nil {
		return Info{}, false
	}
	return ByID(int(id))
}

// NameOf returns the beverage name, or unknown_0xNN.
func NameOf(id int) string {
	if b, ok := byID[id]; ok {
		return b.Name
	}
	return fmt.Sprintf("unknown_0x%02x", id)
}

// InCategory lists a category's beverages sorted by id.
func InCategory(c Category) []Info {
	out := make([]Info, 0)
	for _, b := range table {
		if b.Category == c {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All lists every beverage sorted by id.
func All() []Info {
	out := append([]Info(nil), table...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the catalog size.
func Len() int { return len(table) }

// ContainsID reports whether id is catalogued.
func ContainsID(id int) bool {
	_, ok := byID[id]
	return ok
}

// ContainsName reports whether name is catalogued (exact match).
func ContainsName(name string) bool {
	_, ok := byName[name]
	return ok
}
