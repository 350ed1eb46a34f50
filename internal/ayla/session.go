// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ayla

import (
	"context"
	"fmt"
	"slices"

	"github.com/ManuGH/cremalink/internal/log"
)

// Session binds a client to a token file: it turns the stored refresh token
// into an access token and keeps the rotated refresh token on disk.
type Session struct {
	client *Client
	tokens *TokenStore
}

// NewSession returns an unauthenticated session.
func NewSession(client *Client, tokens *TokenStore) *Session {
	return &Session{client: client, tokens: tokens}
}

// Client returns the underlying API client.
func (s *Session) Client() *Client { return s.client }

// Authenticate refreshes the access token and persists the new refresh token.
func (s *Session) Authenticate(ctx context.Context) error {
	refresh, err := s.tokens.RefreshToken()
	if err != nil {
		return err
	}
	tokens, err := s.client.RefreshAccessToken(ctx, refresh)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	if tokens.RefreshToken != "" && tokens.RefreshToken != refresh {
		if err := s.tokens.Save(tokens.RefreshToken); err != nil {
			return err
		}
	}
	logger := log.WithComponentFromContext(ctx, log.ComponentCloud)
	logger.Info().
		Str(log.FieldEvent, "cloud.authenticated").
		Msg("access token refreshed")
	return nil
}

// DSNs lists the serial numbers on the account.
func (s *Session) DSNs(ctx context.Context) ([]string, error) {
	return s.client.DSNs(ctx)
}

// Device returns the device only if it belongs to the account.
func (s *Session) Device(ctx context.Context, dsn string) (DeviceInfo, error) {
	dsns, err := s.client.DSNs(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	if !slices.Contains(dsns, dsn) {
		return DeviceInfo{}, &APIError{Sentinel: ErrNotFound, Operation: "device", Body: dsn}
	}
	return s.client.Device(ctx, dsn)
}
