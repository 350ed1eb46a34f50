// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/log"
)

// PerformStartupChecks validates the environment before the LAN server starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if cfg.DataDir != "" {
		if err := checkDataDir(logger, cfg.DataDir); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}

	if p := cfg.Server.DeviceRegisterCAPath; p != "" {
		if err := checkFileReadable(p); err != nil {
			return fmt.Errorf("device CA bundle: %w", err)
		}
		logger.Info().Str("path", p).Msg("device CA bundle is readable")
	}

	if d := cfg.DeviceMaps.OverlayDir; d != "" {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("device map overlay %q is not a directory", d)
		}
	}

	if !cfg.Server.EnableDeviceRegister {
		logger.Warn().Msg("device registration disabled; the machine will not call back")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
