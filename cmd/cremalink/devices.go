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

func newDevicesCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the machines registered to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := &deviceOptions{root: root}
			s, err := o.session(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.cache.Close() }()

			devices, err := s.Client().Devices(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), devices)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DSN\tNAME\tOEM MODEL\tMAP\tLAN IP\tSTATUS")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.DSN, d.ProductName, d.OEMModel, devicemap.ResolveModelID(d.OEMModel), d.LANIP, d.ConnectionStatus)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw device records")
	return cmd
}
