// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/devicemap"
)

func newMapsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "maps [model]",
		Short: "List supported machines, or show one device map",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := devicemap.NewRegistry(root.cfg.DeviceMaps.OverlayDir)
			if len(args) == 0 {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODEL\tALIASES")
				aliases := map[string][]string{}
				for oem, model := range devicemap.OEMModels() {
					aliases[model] = append(aliases[model], oem)
				}
				for _, model := range registry.Available() {
					fmt.Fprintf(tw, "%s\t%v\n", model, aliases[model])
				}
				return tw.Flush()
			}
			m, err := registry.Load(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"model":            m.Model,
				"source":           m.Source,
				"device_type":      m.DeviceType,
				"monitor_property": m.MonitorProperty(),
				"commands":         m.CommandHexes(),
				"property_map":     m.PropertyMap,
			})
		},
	}
}
