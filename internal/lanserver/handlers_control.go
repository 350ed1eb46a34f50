// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/store"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DeviceConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	dev, err := s.state.Configure(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentLANServer)
	if s.store != nil {
		rec := store.DeviceRecord{
			DSN:             dev.DSN,
			DeviceIP:        dev.DeviceIP,
			LANKey:          dev.LANKey,
			Scheme:          dev.Scheme,
			MonitorProperty: dev.MonitorProperty,
			UpdatedAt:       time.Now().UTC(),
		}
		if err := s.store.SaveDevice(ctx, rec); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "configure_persist_failed").Msg("could not persist device configuration")
		}
	}
	logger.Info().Str(xglog.FieldEvent, "configure").
		Str(xglog.FieldDSN, dev.DSN).
		Str(xglog.FieldDeviceIP, dev.DeviceIP).
		Str(xglog.FieldScheme, dev.Scheme).
		Str(xglog.FieldProperty, dev.MonitorProperty).
		Msg("device configured")
	s.audit.DeviceConfigured(ctx, r.RemoteAddr, dev.DSN, dev.DeviceIP)

	s.triggerRegister()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "configured",
		"dsn":                   dev.DSN,
		"device_scheme":         dev.Scheme,
		"monitor_property_name": dev.MonitorProperty,
	})
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusUnprocessableEntity, "command is required")
		return
	}
	n, err := s.state.QueueCommand(req.Command)
	if err != nil {
		s.writeQueueError(w, err)
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), xglog.ComponentLANServer)
	logger.Info().Str(xglog.FieldEvent, "command_queued").
		Str(xglog.FieldCommand, req.Command).Int("queue_length", n).Msg("command queued")
	dev, _ := s.state.Device()
	s.audit.CommandQueued(r.Context(), r.RemoteAddr, dev.DSN, n)
	writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "queue_length": n})
}

func (s *Server) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleGetProperties(w http.ResponseWriter, _ *http.Request) {
	props, at := s.state.Properties()
	var receivedAt any
	if !at.IsZero() {
		receivedAt = unixSeconds(at)
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props, "received_at": receivedAt})
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, ok := s.state.Property(name)
	if !ok {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": data["value"]})
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.MonitorPayload())
}

func (s *Server) handleRefreshMonitor(w http.ResponseWriter, r *http.Request) {
	n, err := s.state.QueueMonitorRequest()
	if err != nil {
		s.writeQueueError(w, err)
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), xglog.ComponentLANServer)
	logger.Info().Str(xglog.FieldEvent, "monitor_requested").Int("queue_length", n).Msg("monitor refresh queued")
	writeJSON(w, http.StatusOK, map[string]any{"status": "requested", "queue_length": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"events":  xglog.GetRecentLogs(),
		"dropped": xglog.GetBufferMetrics(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
