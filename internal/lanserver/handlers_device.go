// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/metrics"
	"github.com/ManuGH/cremalink/internal/store"
)

const maxBody = 1 << 20

type keyExchangeRequest struct {
	KeyExchange struct {
		Random1 string `json:"random_1"`
		Time1   any    `json:"time_1"`
	} `json:"key_exchange"`
}

type keyExchangeResponse struct {
	Random2 string `json:"random_2"`
	Time2   any    `json:"time_2"`
}

func (s *Server) handleKeyExchange(w http.ResponseWriter, r *http.Request) {
	logger := xglog.WithComponentFromContext(r.Context(), xglog.ComponentLANServer)
	if !s.state.IsConfigured() {
		writeError(w, http.StatusPreconditionFailed, ErrNotConfigured.Error())
		return
	}

	var req keyExchangeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil || req.KeyExchange.Random1 == "" {
		writeError(w, http.StatusBadRequest, "invalid key_exchange payload")
		return
	}
	time1 := stringify(req.KeyExchange.Time1)

	random2, err := s.random2()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "random generation failed")
		return
	}
	time2 := s.time2()

	if err := s.state.KeyExchange(req.KeyExchange.Random1, time1, random2, time2); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			writeError(w, http.StatusPreconditionFailed, err.Error())
			return
		}
		logger.Error().Err(err).Str(xglog.FieldEvent, "key_exchange_failed").Msg("key derivation failed")
		writeError(w, http.StatusInternalServerError, "key derivation failed")
		return
	}
	metrics.RecordKeyExchange()
	logger.Info().Str(xglog.FieldEvent, "key_exchange").
		Interface(xglog.FieldDetails, map[string]any{"random_1": req.KeyExchange.Random1, "time_1": time1}).
		Msg("key exchange completed")

	resp := keyExchangeResponse{Random2: random2, Time2: time2}
	if n, err := strconv.ParseInt(time2, 10, 64); err == nil {
		resp.Time2 = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if !s.state.IsConfigured() {
		writeError(w, http.StatusPreconditionFailed, ErrNotConfigured.Error())
		return
	}
	poll, err := s.state.NextPoll()
	if errors.Is(err, ErrNoSession) {
		writeError(w, http.StatusPreconditionFailed, err.Error())
		return
	}
	if err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), xglog.ComponentLANServer)
		logger.Error().Err(err).Str(xglog.FieldEvent, "command_encrypt_failed").Msg("failed to build command payload")
		writeError(w, http.StatusInternalServerError, "failed to build command payload")
		return
	}
	status := http.StatusOK
	if poll.More {
		status = http.StatusPartialContent
	}
	writeJSON(w, status, poll)
}

type encPayload struct {
	Enc string `json:"enc"`
}

func (s *Server) handleDatapoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentLANServer)

	var body encPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body); err != nil || body.Enc == "" {
		writeError(w, http.StatusBadRequest, "invalid datapoint payload")
		return
	}
	dp, err := s.state.AcceptDatapoint(body.Enc)
	metrics.RecordDatapoint(dp.Monitor, err)
	if errors.Is(err, ErrNoSession) {
		writeError(w, http.StatusPreconditionFailed, err.Error())
		return
	}
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "datapoint_rejected").Msg("could not decode datapoint")
		writeError(w, http.StatusBadRequest, "could not decode datapoint")
		return
	}
	logger.Info().Str(xglog.FieldEvent, "datapoint").
		Str(xglog.FieldProperty, dp.Name).Interface(xglog.FieldSeq, dp.SeqNo).Msg("datapoint received")

	if dp.Monitor {
		snap := s.state.MonitorSnapshot()
		if snap.Frame != nil {
			metrics.RecordMonitor(snap.DeviceID, int(snap.Frame.Status), snap.ReceivedAt)
		}
		_ = s.sink.Record(ctx, snap)
		if s.store != nil {
			rec := store.MonitorRecord{DSN: snap.DeviceID, RawB64: snap.RawB64, ReceivedAt: snap.ReceivedAt}
			if err := s.store.SaveMonitor(ctx, rec); err != nil {
				logger.Warn().Err(err).Str(xglog.FieldEvent, "monitor_persist_failed").Msg("could not persist monitor")
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDatapointAck(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body)
	logger := xglog.WithComponentFromContext(r.Context(), xglog.ComponentLANServer)
	logger.Info().Str(xglog.FieldEvent, "datapoint_ack").Interface(xglog.FieldDetails, body).Msg("datapoint ack")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
