// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lanserver

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func testConfig() config.ServerConfig {
	cfg := config.Defaults().Server
	cfg.EnableDeviceRegister = false
	cfg.FixedRandom2 = random2
	cfg.FixedTime2 = time2
	cfg.QueueMaxSize = 3
	cfg.RateLimit = 0
	return cfg
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []monitor.Snapshot
}

func (r *recordingSink) Record(_ context.Context, s monitor.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recordingSink) Close() error { return nil }

type harness struct {
	srv   *Server
	http  *httptest.Server
	sink  *recordingSink
	store *store.MemoryStore
}

func newHarness(t *testing.T, cfg config.ServerConfig) *harness {
	t.Helper()
	h := &harness{sink: &recordingSink{}, store: store.NewMemoryStore()}
	srv, err := New(cfg, Deps{Store: h.store, History: h.sink, Version: "test"})
	require.NoError(t, err)
	h.srv = srv
	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		_ = srv.Close()
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func (h *harness) configure(t *testing.T) {
	t.Helper()
	resp, out := h.do(t, http.MethodPost, "/configure", map[string]any{
		"dsn": testDSN, "device_ip": "192.168.1.50", "lan_key": testLANKey, "device_scheme": "http",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "configured", out["status"])
}

func (h *harness) keyExchange(t *testing.T) {
	t.Helper()
	resp, out := h.do(t, http.MethodPost, "/local_lan/key_exchange.json", map[string]any{
		"key_exchange": map[string]any{"random_1": random1, "time_1": 123456, "proto": 1, "key_id": 1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, random2, out["random_2"])
	assert.Equal(t, float64(654321), out["time_2"])
}

func (h *harness) poll(t *testing.T) (int, Poll) {
	t.Helper()
	resp, err := h.http.Client().Get(h.http.URL + "/local_lan/commands.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	var p Poll
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return resp.StatusCode, p
}

func TestDeviceRoutes_RequireConfiguration(t *testing.T) {
	h := newHarness(t, testConfig())

	resp, _ := h.do(t, http.MethodPost, "/local_lan/key_exchange.json", map[string]any{
		"key_exchange": map[string]any{"random_1": random1, "time_1": time1},
	})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/local_lan/commands.json", nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	h.configure(t)
	resp, _ = h.do(t, http.MethodGet, "/local_lan/commands.json", nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode, "no key exchange yet")

	resp, _ = h.do(t, http.MethodPost, "/local_lan/key_exchange.json", map[string]any{"key_exchange": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfigure_Rejects(t *testing.T) {
	h := newHarness(t, testConfig())
	resp, out := h.do(t, http.MethodPost, "/configure", map[string]any{"dsn": testDSN})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, out["detail"], "device_ip")

	resp, _ = h.do(t, http.MethodPost, "/command", map[string]any{"command": stopHex})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestFullSession(t *testing.T) {
	h := newHarness(t, testConfig())
	h.configure(t)
	h.keyExchange(t)
	m := newMachine(t)

	rec, err := h.store.LoadDevice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testDSN, rec.DSN)
	assert.Equal(t, "http", rec.Scheme)

	resp, out := h.do(t, http.MethodPost, "/command", map[string]any{"command": stopHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "queued", out["status"])
	assert.EqualValues(t, 1, out["queue_length"])

	resp, out = h.do(t, http.MethodGet, "/refresh_monitor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, out["queue_length"])

	code, p := h.poll(t)
	assert.Equal(t, http.StatusPartialContent, code)
	assert.Contains(t, m.open(t, p)["data"], "properties")

	code, p = h.poll(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, m.open(t, p)["data"], "cmds")

	code, p = h.poll(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{}, m.open(t, p)["data"])

	resp, _ = h.do(t, http.MethodPost, "/local_lan/property/datapoint.json", map[string]any{"enc": m.push(t, 1, "d302_monitor", monitorB64)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/local_lan/property/datapoint/ack.json", map[string]any{"id": "x", "status": 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = h.do(t, http.MethodGet, "/get_monitor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, monitorB64, out["monitor_b64"])
	assert.NotNil(t, out["received_at"])

	resp, out = h.do(t, http.MethodGet, "/properties/d302_monitor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, monitorB64, out["value"])

	resp, _ = h.do(t, http.MethodGet, "/properties/d999_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = h.do(t, http.MethodGet, "/get_properties", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out["properties"], "d302_monitor")

	h.sink.mu.Lock()
	require.Len(t, h.sink.snaps, 1)
	assert.EqualValues(t, 7, h.sink.snaps[0].Frame.Status)
	h.sink.mu.Unlock()

	mon, err := h.store.LoadMonitor(context.Background(), testDSN)
	require.NoError(t, err)
	assert.Equal(t, monitorB64, mon.RawB64)

	resp, _ = h.do(t, http.MethodPost, "/local_lan/property/datapoint.json", map[string]any{"enc": "garbage"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommand_QueueFull(t *testing.T) {
	h := newHarness(t, testConfig())
	h.configure(t)
	for range 3 {
		resp, _ := h.do(t, http.MethodPost, "/command", map[string]any{"command": stopHex})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, out := h.do(t, http.MethodPost, "/command", map[string]any{"command": stopHex})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, ErrQueueFull.Error(), out["detail"])

	resp, _ = h.do(t, http.MethodPost, "/command", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHealthAndLogs(t *testing.T) {
	h := newHarness(t, testConfig())

	resp, err := h.http.Client().Get(h.http.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	resp, out := h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	checks := out["checks"].(map[string]any)
	assert.Equal(t, "degraded", checks["device"].(map[string]any)["status"])

	xglog.ClearRecentLogs()
	xglog.Reconfigure(xglog.Config{Level: "info", Output: io.Discard, Service: "test"})
	h.configure(t)

	resp, out = h.do(t, http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := out["events"].([]any)
	var found bool
	for _, e := range events {
		entry := e.(map[string]any)
		if entry["event"] == "configure" {
			found = true
			details := entry["details"].(map[string]any)
			assert.Equal(t, testDSN, details["dsn"])
			assert.NotContains(t, details, "lan_key")
		}
	}
	assert.True(t, found, "configure event in ring buffer")

	resp, err = h.http.Client().Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "cremalink_http_requests_total")
}

func TestRestore(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SaveDevice(ctx, store.DeviceRecord{DSN: testDSN, DeviceIP: "10.0.0.9", LANKey: testLANKey, Scheme: "http"}))
	require.NoError(t, st.SaveMonitor(ctx, store.MonitorRecord{DSN: testDSN, RawB64: monitorB64, ReceivedAt: time.Unix(1700000000, 0)}))

	srv, err := New(testConfig(), Deps{Store: st})
	require.NoError(t, err)
	require.NoError(t, srv.Restore(ctx))

	dev, ok := srv.State().Device()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9", dev.DeviceIP)
	assert.True(t, srv.State().MonitorSnapshot().OK())

	empty, err := New(testConfig(), Deps{Store: store.NewMemoryStore()})
	require.NoError(t, err)
	require.NoError(t, empty.Restore(ctx))
	assert.False(t, empty.State().IsConfigured())
}

func TestAdapter_Register(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	status := http.StatusAccepted
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/local_reg.json", r.URL.Path)
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	defer device.Close()

	cfg := testConfig()
	cfg.EnableDeviceRegister = true
	cfg.IP = "127.0.0.1"
	a, err := NewAdapter(cfg)
	require.NoError(t, err)

	st := NewState(1)
	_, err = st.Configure(DeviceConfig{
		DSN: testDSN, DeviceIP: strings.TrimPrefix(device.URL, "http://"), LANKey: testLANKey, Scheme: "http",
	})
	require.NoError(t, err)

	require.NoError(t, a.Register(context.Background(), st))
	assert.True(t, st.Registered())
	mu.Lock()
	assert.Equal(t, map[string]any{"local_reg": map[string]any{
		"ip": "127.0.0.1", "notify": float64(1), "port": float64(config.DefaultServerPort), "uri": "/local_lan",
	}}, got)
	status = http.StatusInternalServerError
	mu.Unlock()

	err = a.Register(context.Background(), st)
	require.ErrorIs(t, err, ErrRegisterFailed)
	assert.False(t, st.Registered())
}

func TestAdapter_AnnouncesInterfaceAddr(t *testing.T) {
	var got localReg
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer device.Close()

	cfg := testConfig()
	cfg.EnableDeviceRegister = true
	cfg.IP = "0.0.0.0"
	a, err := NewAdapter(cfg)
	require.NoError(t, err)
	a.candidates = func() ([]net.IP, error) { return []net.IP{net.ParseIP("192.168.7.20")}, nil }

	st := NewState(1)
	_, err = st.Configure(DeviceConfig{DSN: testDSN, DeviceIP: device.URL, LANKey: testLANKey})
	require.NoError(t, err)
	require.NoError(t, a.Register(context.Background(), st))
	assert.Equal(t, "192.168.7.20", got.LocalReg.IP)

	a.candidates = func() ([]net.IP, error) { return nil, nil }
	assert.ErrorIs(t, a.Register(context.Background(), st), ErrRegisterFailed)
}

func TestAdapter_Disabled(t *testing.T) {
	a, err := NewAdapter(testConfig())
	require.NoError(t, err)
	st := NewState(1)
	require.NoError(t, a.Register(context.Background(), st))
	assert.False(t, st.Registered())

	cfg := testConfig()
	cfg.EnableDeviceRegister = true
	a, err = NewAdapter(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Register(context.Background(), st), ErrNoDeviceIP)
}

func TestRunJobs_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.NudgerPollInterval = 10 * time.Millisecond
	cfg.MonitorPollInterval = 10 * time.Millisecond
	cfg.RekeyInterval = time.Hour
	srv, err := New(cfg, Deps{})
	require.NoError(t, err)
	_, err = srv.State().Configure(DeviceConfig{DSN: testDSN, DeviceIP: "192.168.1.50", LANKey: testLANKey})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunJobs(ctx) }()

	assert.Eventually(t, srv.State().MonitorPending, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not stop")
	}
	assert.Equal(t, 1, srv.State().QueueLen(), "pending request is not duplicated")
}

func TestSetIntervals(t *testing.T) {
	srv, err := New(testConfig(), Deps{})
	require.NoError(t, err)
	srv.SetIntervals(2*time.Second, 0, time.Minute)
	assert.Equal(t, 2*time.Second, srv.nudgerInterval())
	assert.Equal(t, time.Second, orDefault(srv.monitorInterval()))
	assert.Equal(t, time.Minute, srv.rekeyInterval())
}

func TestEvery_FollowsIntervalChange(t *testing.T) {
	srv, err := New(testConfig(), Deps{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var period atomic.Int64
	period.Store(int64(time.Hour))
	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- srv.every(ctx, "test", func() time.Duration { return time.Duration(period.Load()) }, true,
			func(context.Context) error {
				runs.Add(1)
				return nil
			})
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond, "immediate run")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "no tick within the hour period")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	period.Store(int64(20 * time.Millisecond))
	runs.Store(0)
	go func() {
		done <- srv.every(ctx, "test", func() time.Duration { return time.Duration(period.Load()) }, false,
			func(context.Context) error {
				if runs.Add(1) == 1 {
					period.Store(int64(5 * time.Millisecond))
				}
				return nil
			})
	}()
	require.Eventually(t, func() bool { return runs.Load() >= 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMapsRoutes(t *testing.T) {
	srv, err := New(testConfig(), Deps{Maps: devicemap.NewRegistry("")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	h := &harness{srv: srv, http: ts}

	resp, out := h.do(t, http.MethodGet, "/maps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out["models"], "ECAM450")
	assert.Equal(t, "ECAM450", out["oem_models"].(map[string]any)["AY008ESP1"])

	resp, out = h.do(t, http.MethodGet, "/maps/DL-striker-cb", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ECAM450", out["model"])
	assert.Equal(t, "d302_monitor_machine", out["monitor_property"])
	assert.Contains(t, out["commands"], "espresso")

	resp, _ = h.do(t, http.MethodGet, "/maps/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	bare := newHarness(t, testConfig())
	resp, _ = bare.do(t, http.MethodGet, "/maps", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestControlAPI_RateLimitAudited(t *testing.T) {
	xglog.Reconfigure(xglog.Config{Level: "info", Output: io.Discard})
	xglog.ClearRecentLogs()

	cfg := testConfig()
	cfg.RateLimit = 1
	h := newHarness(t, cfg)

	resp, _ := h.do(t, http.MethodGet, "/logs", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	resp, body := h.do(t, http.MethodGet, "/logs", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", body["detail"])

	var events []string
	for _, e := range xglog.GetRecentLogs() {
		events = append(events, e.Event)
	}
	assert.Contains(t, events, "api.ratelimit")
}
