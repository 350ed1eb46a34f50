// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audit records security-relevant actions (who, what, when) on the
// audit component so they reach the recent-events ring.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cremalink/internal/log"
)

// EventType names an audited action.
type EventType string

const (
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	EventLoginSuccess EventType = "auth.login"
	EventLoginFailure EventType = "auth.login.error"

	EventDeviceConfigured EventType = "device.configure"
	EventCommandQueued    EventType = "device.command"
	EventBeverage         EventType = "device.brew"

	EventAPIRateLimit EventType = "api.ratelimit"
)

// Event is one audit record.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string // remote address, account or "system"
	Action     string
	Resource   string
	Result     string // success, failure, denied
	RemoteAddr string
	RequestID  string
	Details    map[string]string
}

// Logger writes audit events.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger returns a logger bound to the audit component.
func NewLogger() *Logger {
	return &Logger{
		logger: log.WithComponent(log.ComponentAudit).With().Str("log_type", "audit").Logger(),
		now:    time.Now,
	}
}

// Log writes event. A zero Timestamp is filled in.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	ev := l.logger.Info().
		Str(log.FieldEvent, string(event.Type)).
		Time("timestamp", event.Timestamp).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)
	if event.RemoteAddr != "" {
		ev.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		ev.Str(log.FieldRequestID, event.RequestID)
	}
	for k, v := range event.Details {
		ev.Str(k, v)
	}
	ev.Msg("audit event")
}

// LogFromContext fills RequestID from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

// ConfigReload records a configuration reload and its outcome.
func (l *Logger) ConfigReload(actor string, err error) {
	ev := Event{
		Type:     EventConfigReload,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   "success",
	}
	if err != nil {
		ev.Type = EventConfigReloadError
		ev.Result = "failure"
		ev.Details = map[string]string{"error": err.Error()}
	}
	l.Log(ev)
}

// Login records a cloud account login attempt.
func (l *Logger) Login(account string, err error) {
	ev := Event{
		Type:     EventLoginSuccess,
		Actor:    account,
		Action:   "logged in to cloud account",
		Resource: "gigya",
		Result:   "success",
	}
	if err != nil {
		ev.Type = EventLoginFailure
		ev.Result = "failure"
		ev.Details = map[string]string{"error": err.Error()}
	}
	l.Log(ev)
}

// DeviceConfigured records a LAN server configure call.
func (l *Logger) DeviceConfigured(ctx context.Context, remoteAddr, dsn, deviceIP string) {
	l.LogFromContext(ctx, Event{
		Type:       EventDeviceConfigured,
		Actor:      remoteAddr,
		Action:     "configured device",
		Resource:   dsn,
		Result:     "success",
		RemoteAddr: remoteAddr,
		Details:    map[string]string{log.FieldDeviceIP: deviceIP},
	})
}

// CommandQueued records a raw command handed to the machine queue.
func (l *Logger) CommandQueued(ctx context.Context, remoteAddr, dsn string, queueLen int) {
	l.LogFromContext(ctx, Event{
		Type:       EventCommandQueued,
		Actor:      remoteAddr,
		Action:     "queued command",
		Resource:   dsn,
		Result:     "success",
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"queue_length": strconv.Itoa(queueLen)},
	})
}

// Beverage records a brew, stop or preset request sent to a machine.
func (l *Logger) Beverage(ctx context.Context, actor, dsn, beverage string, err error) {
	ev := Event{
		Type:     EventBeverage,
		Actor:    actor,
		Action:   "requested " + beverage,
		Resource: dsn,
		Result:   "success",
		Details:  map[string]string{"beverage": beverage},
	}
	if err != nil {
		ev.Result = "failure"
		ev.Details["error"] = err.Error()
	}
	l.LogFromContext(ctx, ev)
}

// RateLimitExceeded records a request refused by the rate limiter.
func (l *Logger) RateLimitExceeded(ctx context.Context, remoteAddr, endpoint string) {
	l.LogFromContext(ctx, Event{
		Type:       EventAPIRateLimit,
		Actor:      remoteAddr,
		Action:     "rate limit exceeded",
		Resource:   endpoint,
		Result:     "denied",
		RemoteAddr: remoteAddr,
	})
}
