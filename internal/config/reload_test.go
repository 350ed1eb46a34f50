// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oasdiff/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path string, server map[string]any) {
	t.Helper()
	data, err := yaml.Marshal(map[string]any{"server": server})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestHolder_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cremalink.yaml")
	writeConfig(t, path, map[string]any{"monitorPollInterval": "3s"})

	loader := NewLoader(path, "v").WithEnvFile("")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	var seen atomic.Int64
	h.OnReload(func(old, updated AppConfig) {
		assert.Equal(t, 3*time.Second, old.Server.MonitorPollInterval)
		seen.Store(int64(updated.Server.MonitorPollInterval))
	})

	writeConfig(t, path, map[string]any{"monitorPollInterval": "7s"})
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 7*time.Second, h.Get().Server.MonitorPollInterval)
	assert.Equal(t, int64(7*time.Second), seen.Load())
}

func TestHolder_ReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cremalink.yaml")
	writeConfig(t, path, map[string]any{"port": 10281})

	loader := NewLoader(path, "v").WithEnvFile("")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	writeConfig(t, path, map[string]any{"port": 0})
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 10281, h.Get().Server.Port)
}

func TestHolder_Watcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cremalink.yaml")
	writeConfig(t, path, map[string]any{"queueMaxSize": 10})

	loader := NewLoader(path, "v").WithEnvFile("")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	writeConfig(t, path, map[string]any{"queueMaxSize": 20})
	assert.Eventually(t, func() bool {
		return h.Get().Server.QueueMaxSize == 20
	}, 5*time.Second, 50*time.Millisecond)
}

func TestHolder_WatcherWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "v").WithEnvFile(""))
	assert.NoError(t, h.StartWatcher(context.Background()))
}
