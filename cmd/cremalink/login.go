// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/audit"
	"github.com/ManuGH/cremalink/internal/ayla"
	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/gigya"
)

func newLoginCmd(root *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the De'Longhi account and store the refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				email = config.ParseString("CREMALINK_EMAIL", "")
			}
			if password == "" {
				password = config.ParseString("CREMALINK_PASSWORD", "")
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required (flags or CREMALINK_EMAIL / CREMALINK_PASSWORD)")
			}
			if err := root.cfg.Cloud.ValidateLogin(); err != nil {
				return err
			}
			path, err := root.tokenFile()
			if err != nil {
				return err
			}
			store, err := ayla.NewTokenStore(path)
			if err != nil {
				return err
			}

			client := ayla.NewClient(ayla.ConfigFrom(root.cfg.Cloud))
			auth, err := gigya.New(gigya.ConfigFrom(root.cfg.Cloud), client)
			if err != nil {
				return err
			}
			tokens, err := auth.Login(cmd.Context(), email, password)
			audit.NewLogger().Login(email, err)
			if err != nil {
				return err
			}
			if err := store.Save(tokens.RefreshToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in, refresh token saved to %s\n", store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}
