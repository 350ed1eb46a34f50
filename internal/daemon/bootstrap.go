// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the LAN server, its stores and its background jobs
// into a process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/health"
	"github.com/ManuGH/cremalink/internal/history"
	"github.com/ManuGH/cremalink/internal/lanserver"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/store"
	"github.com/ManuGH/cremalink/internal/telemetry"
)

// StoreDirName is the Badger directory below the data dir.
const StoreDirName = "store"

// Daemon is a fully wired serve process.
type Daemon struct {
	*App
	LAN      *lanserver.Server
	Registry *devicemap.Registry
}

// Bootstrap builds the serve runtime from the current configuration. On
// error every resource opened so far is closed again.
func Bootstrap(ctx context.Context, holder *config.Holder) (_ *Daemon, err error) {
	cfg := holder.Get()
	logger := xglog.WithComponent(xglog.ComponentDaemon)

	var cleanups []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i]()
		}
	}()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, err
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg.Telemetry, cfg.Version))
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
		provider = nil
	}
	if provider != nil {
		cleanups = append(cleanups, func() error { return provider.Shutdown(context.Background()) })
	}

	st, err := openStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, st.Close)

	sink, err := history.FromConfig(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	cleanups = append(cleanups, sink.Close)

	registry := devicemap.NewRegistry(cfg.DeviceMaps.OverlayDir)
	hm := health.NewManager(cfg.Version)

	lan, err := lanserver.New(cfg.Server, lanserver.Deps{
		Store:   st,
		History: sink,
		Health:  hm,
		Maps:    registry,
		Version: cfg.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("LAN server: %w", err)
	}
	if err := lan.Restore(ctx); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "restore_failed").Msg("could not restore device configuration")
	}

	holder.OnReload(func(_, updated config.AppConfig) {
		lan.SetIntervals(updated.Server.NudgerPollInterval, updated.Server.MonitorPollInterval, updated.Server.RekeyInterval)
	})

	deps := Deps{
		Logger:     logger,
		APIHandler: lan.Handler(),
		Jobs:       []Job{{Name: "lanserver", Run: lan.RunJobs}},
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.Handler()
		deps.MetricsAddr = cfg.Metrics.Addr
	}
	mgr, err := NewManager(cfg.Server, deps)
	if err != nil {
		return nil, err
	}

	if provider != nil {
		mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	}
	mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })
	// Closing the LAN server also closes the history sink.
	mgr.RegisterShutdownHook("lanserver", func(context.Context) error { return lan.Close() })

	var watchers []Watcher
	if cfg.DeviceMaps.Watch {
		watchers = append(watchers, Watcher{Name: "devicemap", Start: registry.Watch})
	}

	return &Daemon{
		App:      NewApp(logger, mgr, holder, watchers...),
		LAN:      lan,
		Registry: registry,
	}, nil
}

func openStore(dataDir string) (store.DeviceStore, error) {
	if dataDir == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenBadgerStore(filepath.Join(dataDir, StoreDirName))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// IsShutdown reports whether err only says the process was asked to stop.
func IsShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
