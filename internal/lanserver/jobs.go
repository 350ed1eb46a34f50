// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"context"
	"errors"
	"time"

	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunJobs runs the enabled background jobs until ctx is cancelled.
func (s *Server) RunJobs(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.EnableNudgerJob {
		g.Go(func() error { return s.every(ctx, "nudger", s.nudgerInterval, true, s.nudge) })
	}
	if s.cfg.EnableMonitorJob {
		g.Go(func() error { return s.every(ctx, "monitor", s.monitorInterval, true, s.pollMonitor) })
	}
	if s.cfg.EnableRekeyJob {
		g.Go(func() error { return s.every(ctx, "rekey", s.rekeyInterval, false, s.rekey) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SetIntervals changes the job periods. Running jobs pick the new period up
// after their next tick.
func (s *Server) SetIntervals(nudger, monitor, rekey time.Duration) {
	s.intervalMu.Lock()
	defer s.intervalMu.Unlock()
	s.cfg.NudgerPollInterval = nudger
	s.cfg.MonitorPollInterval = monitor
	s.cfg.RekeyInterval = rekey
}

func (s *Server) nudgerInterval() time.Duration {
	s.intervalMu.RLock()
	defer s.intervalMu.RUnlock()
	return s.cfg.NudgerPollInterval
}

func (s *Server) monitorInterval() time.Duration {
	s.intervalMu.RLock()
	defer s.intervalMu.RUnlock()
	return s.cfg.MonitorPollInterval
}

func (s *Server) rekeyInterval() time.Duration {
	s.intervalMu.RLock()
	defer s.intervalMu.RUnlock()
	return s.cfg.RekeyInterval
}

// every calls fn on each tick until ctx ends. Errors from fn are logged, not
// returned. With immediate set the first run happens before the first tick.
func (s *Server) every(ctx context.Context, name string, period func() time.Duration, immediate bool, fn func(context.Context) error) error {
	interval := orDefault(period())
	logger := xglog.WithComponent(xglog.ComponentLANServer).With().Str(xglog.FieldJob, name).Logger()
	logger.Debug().Str(xglog.FieldEvent, "job.started").Dur("interval", interval).Msg("job started")
	defer logger.Debug().Str(xglog.FieldEvent, "job.stopped").Msg("job stopped")

	run := func() {
		jobCtx := xglog.ContextWithJobID(ctx, uuid.New().String())
		if err := fn(jobCtx); err != nil && ctx.Err() == nil {
			l := xglog.WithComponentFromContext(jobCtx, xglog.ComponentLANServer)
			l.Warn().Err(err).Str(xglog.FieldJob, name).Str(xglog.FieldEvent, name+"_failed").Msg("job run failed")
		}
	}
	if immediate {
		run()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
			if next := orDefault(period()); next != interval {
				interval = next
				ticker.Reset(interval)
				logger.Info().Str(xglog.FieldEvent, "job.interval_changed").Dur("interval", interval).Msg("job interval changed")
			}
		}
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}

// nudge re-registers whenever commands wait or the machine forgot us. A
// failed registration drops the session so the machine re-keys.
func (s *Server) nudge(ctx context.Context) error {
	if !s.state.IsConfigured() {
		return nil
	}
	if s.state.QueueLen() == 0 && s.state.Registered() {
		return nil
	}
	if err := s.adapter.Register(ctx, s.state); err != nil {
		s.state.Rekey()
		return err
	}
	return nil
}

// pollMonitor requests a monitor frame unless one is already pending.
func (s *Server) pollMonitor(context.Context) error {
	if !s.state.IsConfigured() || s.state.MonitorPending() {
		return nil
	}
	_, err := s.state.QueueMonitorRequest()
	return err
}

// rekey forces a fresh key exchange.
func (s *Server) rekey(ctx context.Context) error {
	if !s.state.IsConfigured() {
		return nil
	}
	s.state.Rekey()
	if err := s.adapter.Register(ctx, s.state); err != nil {
		return err
	}
	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentLANServer)
	logger.Info().Str(xglog.FieldEvent, "rekey_triggered").Dur("interval", s.rekeyInterval()).Msg("session rekeyed")
	return nil
}
