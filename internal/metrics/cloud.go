// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cloudRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_cloud_requests_total",
		Help: "Ayla cloud API calls by operation and result",
	}, []string{"op", "result"})

	cloudLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cremalink_cloud_request_duration_seconds",
		Help:    "Ayla cloud API latency by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	authSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_auth_steps_total",
		Help: "Gigya login steps by step name and result",
	}, []string{"step", "result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cremalink_cache_lookups_total",
		Help: "Property snapshot cache lookups by backend and result (hit|miss)",
	}, []string{"backend", "result"})
)

// ObserveCloudRequest records one cloud call.
func ObserveCloudRequest(op string, d time.Duration, err error) {
	cloudRequests.WithLabelValues(op, resultLabel(err)).Inc()
	cloudLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordAuthStep records the outcome of a login step.
func RecordAuthStep(step string, err error) {
	authSteps.WithLabelValues(step, resultLabel(err)).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	cacheLookups.WithLabelValues(backend, r).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
