// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/config"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/version"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logOutput  io.Writer

	loader *config.Loader
	cfg    config.AppConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOutput: os.Stderr}
	cmd := &cobra.Command{
		Use:   "cremalink",
		Short: "Control De'Longhi ECAM coffee machines over the Ayla cloud or the LAN",
		Long: `cremalink talks to De'Longhi ECAM machines.

Examples:
  cremalink login --email me@example.com
  cremalink devices
  cremalink monitor --dsn AC000W000000001
  cremalink brew espresso --dsn AC000W000000001 --set coffee_ml=60
  cremalink serve --port 10280
  cremalink monitor --local --dsn AC000W000000001 --device-ip 192.168.1.50`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.ParseString("CREMALINK_CONFIG", ""), "path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newDevicesCmd(opts),
		newMonitorCmd(opts),
		newPropertiesCmd(opts),
		newBrewCmd(opts),
		newStopCmd(opts),
		newDoCmd(opts),
		newMapsCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) load() error {
	o.loader = config.NewLoader(o.configPath, version.Version).WithEnvFile(o.envFile)
	cfg, err := o.loader.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	o.cfg = cfg
	xglog.Reconfigure(xglog.Config{
		Level:    cfg.LogLevel,
		Output:   o.logOutput,
		Service:  "cremalink",
		Version:  version.Version,
		RingSize: cfg.Server.LogRingSize,
	})
	return nil
}

// tokenFile resolves where the refresh token lives.
func (o *rootOptions) tokenFile() (string, error) {
	if o.cfg.TokenFile != "" {
		return o.cfg.TokenFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cremalink", config.DefaultTokenFileName), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
