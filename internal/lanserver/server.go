// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lanserver is the local server a coffee machine talks to over the
// LAN. The machine registers it via local_reg, performs a key exchange, then
// polls for encrypted commands and pushes encrypted property datapoints.
// Clients drive it through a small JSON control API.
package lanserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/cremalink/internal/audit"
	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/health"
	"github.com/ManuGH/cremalink/internal/history"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/store"
)

// Deps are the optional collaborators of a Server.
type Deps struct {
	Store   store.DeviceStore
	History history.Sink
	Health  *health.Manager
	Maps    MapCatalog
	Version string
}

// Server owns the LAN state, the device adapter and the HTTP surface.
type Server struct {
	intervalMu sync.RWMutex
	cfg        config.ServerConfig
	state      *State
	adapter    *Adapter
	store      store.DeviceStore
	sink       history.Sink
	health     *health.Manager
	maps       MapCatalog
	audit      *audit.Logger

	random2 func() (string, error)
	time2   func() string

	wg sync.WaitGroup
}

// New builds a server from its settings.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("device adapter: %w", err)
	}
	if cfg.LogRingSize > 0 {
		xglog.SetRingSize(cfg.LogRingSize)
	}
	s := &Server{
		cfg:     cfg,
		state:   NewState(cfg.QueueMaxSize),
		adapter: adapter,
		store:   deps.Store,
		sink:    deps.History,
		health:  deps.Health,
		maps:    deps.Maps,
		audit:   audit.NewLogger(),
		random2: func() (string, error) { return randomAlphanumeric(16) },
		time2:   monotonicMillis,
	}
	if cfg.FixedRandom2 != "" {
		fixed := cfg.FixedRandom2
		s.random2 = func() (string, error) { return fixed, nil }
	}
	if cfg.FixedTime2 != "" {
		fixed := cfg.FixedTime2
		s.time2 = func() string { return fixed }
	}
	if s.sink == nil {
		s.sink = history.Nop()
	}
	if s.health == nil {
		s.health = health.NewManager(deps.Version)
	}
	s.registerChecks()
	return s, nil
}

// State exposes the server state.
func (s *Server) State() *State { return s.state }

// Health exposes the health manager.
func (s *Server) Health() *health.Manager { return s.health }

func (s *Server) registerChecks() {
	s.health.RegisterChecker(health.CheckerFunc{
		CheckName: "device",
		Fn: func(context.Context) health.CheckResult {
			st := s.state.Status()
			switch {
			case !st.Configured:
				return health.CheckResult{Status: health.StatusDegraded, Message: "not configured"}
			case !st.Session:
				return health.CheckResult{Status: health.StatusDegraded, Message: "waiting for key exchange"}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: "session established"}
		},
	})
	maxAge := max(3*s.cfg.MonitorPollInterval, 30*time.Second)
	s.health.RegisterChecker(health.NewFreshnessChecker("monitor", s.state.LastMonitorAt, maxAge, false))
}

// Restore reloads the last configured device and monitor frame from the store.
func (s *Server) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.LoadDevice(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	dev, err := s.state.Configure(DeviceConfig{
		DSN:             rec.DSN,
		DeviceIP:        rec.DeviceIP,
		LANKey:          rec.LANKey,
		Scheme:          rec.Scheme,
		MonitorProperty: rec.MonitorProperty,
	})
	if err != nil {
		return fmt.Errorf("restore device: %w", err)
	}
	if mon, err := s.store.LoadMonitor(ctx, dev.DSN); err == nil && mon.RawB64 != "" {
		s.state.SeedMonitor(mon.RawB64, mon.ReceivedAt)
	}
	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentLANServer)
	logger.Info().Str(xglog.FieldEvent, "device_restored").
		Str(xglog.FieldDSN, dev.DSN).Str(xglog.FieldDeviceIP, dev.DeviceIP).Msg("restored device configuration")
	return nil
}

// triggerRegister registers with the machine in the background.
func (s *Server) triggerRegister() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timeout := s.cfg.DeviceRegisterTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
		defer cancel()
		_ = s.adapter.Register(ctx, s.state)
	}()
}

// Close waits for background registrations and closes the history sink.
func (s *Server) Close() error {
	s.wg.Wait()
	return s.sink.Close()
}
