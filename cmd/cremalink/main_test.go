// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/device"
	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/history"
	"github.com/ManuGH/cremalink/internal/lanserver"
)

const (
	testDSN    = "AC000W000000001"
	testLANKey = "c2VjcmV0LWxhbi1rZXk="
	monitorB64 = "0BIFAAEEAAACBwEqAIAAAADs2mUAAAGr"
	stopHex    = "0d0d83f010020f00fa1b016635"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CREMALINK_DATA_DIR", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cremalink dev")
}

func TestMaps(t *testing.T) {
	out, err := run(t, "maps")
	require.NoError(t, err)
	assert.Contains(t, out, "ECAM450")
	assert.Contains(t, out, "DL-striker-cb")

	out, err = run(t, "maps", "AY008ESP1")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "ECAM450", m["model"])
	assert.Equal(t, "0d0d83f010020f00fa1b016635", m["commands"].(map[string]any)["stop"])

	_, err = run(t, "maps", "NOPE")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	db, err := history.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Record(ctx, monitor.FromB64(monitorB64, time.Unix(1700000000, 0), monitor.SourceLocal, testDSN)))
	require.NoError(t, db.Close())

	t.Setenv("CREMALINK_HISTORY_SQLITE", path)
	out, err := run(t, "history", "--dsn", testDSN)
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 42, entries[0].Progress)

	t.Setenv("CREMALINK_HISTORY_SQLITE", "")
	_, err = run(t, "history")
	assert.ErrorContains(t, err, "sqlitePath")
}

func startLANServer(t *testing.T) (*lanserver.Server, string) {
	t.Helper()
	cfg := config.Defaults().Server
	cfg.EnableDeviceRegister = false
	srv, err := lanserver.New(cfg, lanserver.Deps{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return srv, ts.URL
}

func localArgs(url string) []string {
	return []string{"--local", "--dsn", testDSN, "--lan-key", testLANKey, "--device-ip", "192.168.1.50", "--server-url", url}
}

func TestLocalCommands(t *testing.T) {
	srv, url := startLANServer(t)

	_, err := run(t, append([]string{"do", "--hex", stopHex}, localArgs(url)...)...)
	require.NoError(t, err)
	assert.True(t, srv.State().IsConfigured())
	assert.Equal(t, 1, srv.State().QueueLen())

	_, err = run(t, append([]string{"do", "espresso", "--model", "ECAM450"}, localArgs(url)...)...)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.State().QueueLen())

	_, err = run(t, append([]string{"brew", "espresso", "--set", "coffee_ml=60"}, localArgs(url)...)...)
	require.NoError(t, err)
	assert.Equal(t, 3, srv.State().QueueLen())

	_, err = run(t, append([]string{"do", "espresso"}, localArgs(url)...)...)
	assert.Error(t, err, "named commands need a device map")

	srv.State().SeedMonitor(monitorB64, time.Unix(1700000000, 0))
	out, err := run(t, append([]string{"monitor", "--model", "ECAM450"}, localArgs(url)...)...)
	require.NoError(t, err)
	var report monitor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotNil(t, report.Progress)
	assert.Equal(t, 42, *report.Progress)
}

func TestBind_UnmappedModel(t *testing.T) {
	_, url := startLANServer(t)
	ctx := context.Background()
	o := &deviceOptions{root: &rootOptions{cfg: config.Defaults()}, serverURL: url}
	tr, err := o.localTransport(ctx, testDSN, testLANKey, "192.168.1.50")
	require.NoError(t, err)

	d, err := o.bind(ctx, tr, device.Info{DSN: testDSN, Model: "AY999UNKNOWN"})
	require.NoError(t, err, "a cloud-reported model without a map is dropped")
	assert.Empty(t, d.Info().Model)

	o.model = "AY999UNKNOWN"
	_, err = o.bind(ctx, tr, device.Info{DSN: testDSN, Model: o.model})
	assert.ErrorIs(t, err, devicemap.ErrNotFound)
}
