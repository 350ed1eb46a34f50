// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("ayla", "open")
	assert.Equal(t, 1.0, gaugeValue(t, circuitBreakerState.WithLabelValues("ayla", "open")))
	assert.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("ayla", "closed")))

	SetCircuitBreakerState("ayla", "closed")
	assert.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("ayla", "open")))
	assert.Equal(t, 1.0, gaugeValue(t, circuitBreakerState.WithLabelValues("ayla", "closed")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(cloudRequests.WithLabelValues("properties", "error"))
	ObserveCloudRequest("properties", 20*time.Millisecond, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(cloudRequests.WithLabelValues("properties", "error")))

	before = testutil.ToFloat64(lanPolls.WithLabelValues("empty"))
	RecordCommandPoll(true)
	assert.Equal(t, before+1, testutil.ToFloat64(lanPolls.WithLabelValues("empty")))

	before = testutil.ToFloat64(lanDatapoints.WithLabelValues("monitor", "success"))
	RecordDatapoint(true, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(lanDatapoints.WithLabelValues("monitor", "success")))

	before = testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit"))
	RecordCacheLookup("memory", true)
	assert.Equal(t, before+1, testutil.ToFloat64(cacheLookups.WithLabelValues("memory", "hit")))
}

func TestGauges(t *testing.T) {
	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(lanQueueDepth))

	at := time.Unix(1_700_000_000, 0)
	RecordMonitor("AC000W123", 7, at)
	assert.Equal(t, 7.0, testutil.ToFloat64(monitorStatus.WithLabelValues("AC000W123")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(monitorUpdated.WithLabelValues("AC000W123")))
}

func TestObserveHTTP_Exposed(t *testing.T) {
	ObserveHTTP("/get_monitor", 200, 5*time.Millisecond)
	ObserveHTTP("", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cremalink_http_requests_total{code="200",route="/get_monitor"}`))
	assert.True(t, strings.Contains(body, `route="unmatched"`))
}
