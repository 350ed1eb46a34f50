// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cremalink/internal/audit"
	xglog "github.com/ManuGH/cremalink/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading. Only settings that are
// safe to change at runtime reach listeners: the log level and the LAN
// server poll intervals. Listen addresses and storage paths need a restart.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	audit   *audit.Logger

	listenMu  sync.RWMutex
	listeners []func(old, updated AppConfig)
}

// NewHolder creates a holder with the initial config.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  xglog.WithComponent(xglog.ComponentConfig),
		audit:   audit.NewLogger(),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to run after each successful reload.
func (h *Holder) OnReload(fn func(old, updated AppConfig)) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads and validates the configuration again. On failure the old
// configuration stays in place.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("failed to load new configuration")
		h.audit.ConfigReload("system", err)
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()

	if old.LogLevel != next.LogLevel {
		if err := xglog.SetLevel(next.LogLevel); err != nil {
			h.logger.Warn().Err(err).Str("level", next.LogLevel).Msg("invalid log level on reload")
		}
	}
	h.logChanges(old, next)

	h.listenMu.RLock()
	listeners := append([]func(old, updated AppConfig){}, h.listeners...)
	h.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(old, next)
	}

	h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded successfully")
	h.audit.ConfigReload("system", nil)
	return nil
}

// StartWatcher reloads on file changes until ctx ends. Without a config file
// it is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.ConfigPath()
	if path == "" {
		h.logger.Info().Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().Str(xglog.FieldEvent, "config.watcher_started").Str(xglog.FieldPath, path).
		Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			_ = h.watcher.Close()
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().Str(xglog.FieldEvent, "config.file_changed").Str("op", ev.Op.String()).
				Msg("config file changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

func (h *Holder) logChanges(old, next AppConfig) {
	changes := []struct {
		name     string
		old, new any
	}{
		{"logLevel", old.LogLevel, next.LogLevel},
		{"server.nudgerPollInterval", old.Server.NudgerPollInterval, next.Server.NudgerPollInterval},
		{"server.monitorPollInterval", old.Server.MonitorPollInterval, next.Server.MonitorPollInterval},
		{"server.rekeyInterval", old.Server.RekeyInterval, next.Server.RekeyInterval},
		{"server.addr", old.Server.Addr(), next.Server.Addr()},
		{"cloud.apiUrl", MaskURL(old.Cloud.APIURL), MaskURL(next.Cloud.APIURL)},
	}
	for _, c := range changes {
		if c.old == c.new {
			continue
		}
		h.logger.Info().Interface("old", c.old).Interface("new", c.new).Msgf("config changed: %s", c.name)
	}
}
