// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_http_requests_total",
		Help: "LAN server HTTP requests by route pattern and status code",
	}, []string{"route", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cremalink_http_request_duration_seconds",
		Help:    "LAN server HTTP latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveHTTP records one handled request. route is the router pattern, not
// the raw path.
func ObserveHTTP(route string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(route).Observe(d.Seconds())
}
