// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"
)

func newPropertiesCmd(root *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "properties [name]",
		Short: "Show decoded machine properties, or the value of one property",
		Args:  cobra.MaximumNArgs(1),
	}
	dev := addDeviceFlags(cmd, root)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, closeFn, err := dev.connect(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if len(args) == 1 {
			v, err := d.Property(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"name": args[0], "value": v})
		}
		snap, err := d.Properties(ctx)
		if err != nil {
			return err
		}
		if raw {
			out := make(map[string]any, len(snap.Names()))
			for _, name := range snap.Names() {
				out[name], _ = snap.Value(name)
			}
			return printJSON(cmd.OutOrStdout(), out)
		}
		return printJSON(cmd.OutOrStdout(), snap.Summarize())
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw property values instead of the decoded summary")
	return cmd
}
