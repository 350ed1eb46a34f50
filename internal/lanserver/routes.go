// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP surface: device protocol routes under /local_lan
// and the control API at the root.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(tracing)
	r.Use(accessLog)

	r.Route("/local_lan", func(r chi.Router) {
		r.Post("/key_exchange.json", s.handleKeyExchange)
		r.Get("/commands.json", s.handleCommands)
		r.Post("/property/datapoint.json", s.handleDatapoint)
		r.Post("/property/datapoint/ack.json", s.handleDatapointAck)
	})

	r.Group(func(r chi.Router) {
		if len(s.cfg.CORSOrigins) > 0 {
			r.Use(corsHandler(s.cfg.CORSOrigins))
		}
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit, func(r *http.Request) {
				s.audit.RateLimitExceeded(r.Context(), r.RemoteAddr, r.URL.Path)
			}))
		}
		r.Post("/configure", s.handleConfigure)
		r.Post("/command", s.handleCommand)
		r.Get("/get_properties", s.handleGetProperties)
		r.Get("/properties/{name}", s.handleGetProperty)
		r.Get("/get_monitor", s.handleGetMonitor)
		r.Get("/refresh_monitor", s.handleRefreshMonitor)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		if s.maps != nil {
			r.Get("/maps", s.handleListMaps)
			r.Get("/maps/{model}", s.handleGetMap)
		}
	})

	r.Get("/health", s.handleHealth)
	r.Get("/openapi.yaml", handleOpenAPI)
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
