// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/history"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		dsn   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show monitor snapshots recorded by `cremalink serve`",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := root.cfg.History.SQLitePath
			if path == "" {
				return fmt.Errorf("history.sqlitePath is not configured")
			}
			db, err := history.OpenSQLite(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			entries, err := db.Recent(cmd.Context(), dsn, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "only this device")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries, newest first")
	return cmd
}
