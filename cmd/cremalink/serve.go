// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/daemon"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/version"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		ip      string
		port    int
		metrics bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local LAN server the machine calls back into",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("ip") {
				cfg.Server.IP = ip
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Enabled = metrics
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := xglog.WithComponent(xglog.ComponentDaemon)
			logger.Info().
				Str(xglog.FieldEvent, "daemon.starting").
				Str("version", version.Version).
				Str("commit", version.Commit).
				Str(xglog.FieldAddr, cfg.Server.Addr()).
				Interface("config", config.MaskSecrets(cfg)).
				Msg("starting cremalink LAN server")

			ctx, stop := daemon.WaitForShutdown(cmd.Context())
			defer stop()

			d, err := daemon.Bootstrap(ctx, config.NewHolder(cfg, root.loader))
			if err != nil {
				return err
			}
			if err := d.Run(ctx); !daemon.IsShutdown(err) {
				return err
			}
			logger.Info().Str(xglog.FieldEvent, "daemon.exited").Msg("cremalink stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "address to listen on and to announce to the machine")
	cmd.Flags().IntVar(&port, "port", config.DefaultServerPort, "port to listen on")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics on metrics.addr")
	return cmd
}
