// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/daemon"
	"github.com/ManuGH/cremalink/internal/device"
)

func newMonitorCmd(root *rootOptions) *cobra.Command {
	var (
		refresh bool
		watch   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Decode the machine's monitor frame (status, progress, alarms)",
		Args:  cobra.NoArgs,
	}
	dev := addDeviceFlags(cmd, root)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx, stop := daemon.WaitForShutdown(cmd.Context())
		defer stop()

		d, closeFn, err := dev.connect(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if refresh {
			if err := d.RefreshMonitor(ctx); err != nil {
				return err
			}
		}
		if watch <= 0 {
			return printMonitor(ctx, cmd.OutOrStdout(), d)
		}
		ticker := time.NewTicker(watch)
		defer ticker.Stop()
		for {
			if err := printMonitor(ctx, cmd.OutOrStdout(), d); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the machine for a fresh frame first (local mode)")
	cmd.Flags().DurationVar(&watch, "watch", 0, "print a report every interval until interrupted")
	return cmd
}

func printMonitor(ctx context.Context, w io.Writer, d *device.Device) error {
	view, err := d.Monitor(ctx)
	if err != nil {
		return err
	}
	return printJSON(w, view.Report())
}
