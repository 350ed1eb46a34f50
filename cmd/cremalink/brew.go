// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/audit"
)

func newBrewCmd(root *rootOptions) *cobra.Command {
	var params map[string]int
	cmd := &cobra.Command{
		Use:   "brew <beverage>",
		Short: "Brew a beverage by name or id, optionally overriding recipe parameters",
		Example: `  cremalink brew espresso
  cremalink brew 0x16 --set water_ml=200 --set temperature=3`,
		Args: cobra.ExactArgs(1),
	}
	dev := addDeviceFlags(cmd, root)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, closeFn, err := dev.connect(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := d.Brew(ctx, args[0], params)
		audit.NewLogger().Beverage(ctx, "cli", d.Info().DSN, args[0], err)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}
	cmd.Flags().StringToIntVar(&params, "set", nil, "recipe parameter override, name=value (repeatable)")
	return cmd
}

func newStopCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running beverage",
		Args:  cobra.NoArgs,
	}
	dev := addDeviceFlags(cmd, root)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		d, closeFn, err := dev.connect(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		res, err := d.Stop(ctx)
		audit.NewLogger().Beverage(ctx, "cli", d.Info().DSN, "stop", err)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}
	return cmd
}

func newDoCmd(root *rootOptions) *cobra.Command {
	var rawHex string
	cmd := &cobra.Command{
		Use:   "do [command]",
		Short: "Send a named command preset from the device map, or a raw frame",
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

		switch {
		case rawHex != "":
			res, err := d.SendCommand(ctx, rawHex)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		case len(args) == 0:
			return printJSON(cmd.OutOrStdout(), d.Commands())
		}
		res, err := d.Do(ctx, args[0])
		audit.NewLogger().Beverage(ctx, "cli", d.Info().DSN, args[0], err)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}
	cmd.Flags().StringVar(&rawHex, "hex", "", "send this ECAM frame (hex) instead of a preset")
	return cmd
}
