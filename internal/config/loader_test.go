// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cremalink/internal/validate"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "v-test").WithEnvFile("").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v-test"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "127.0.0.1:10280", cfg.Server.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cremalink.yaml", `
logLevel: debug
dataDir: `+dir+`
server:
  port: 10300
  monitorPollInterval: 2s
  queueMaxSize: 50
cloud:
  appId: app-from-file
deviceMaps:
  overlayDir: `+dir+`
`)
	t.Setenv("SERVER_PORT", "10400")
	t.Setenv("NUDGER_POLL_INTERVAL", "0.5")
	t.Setenv("REKEY_INTERVAL_SECONDS", "90")
	t.Setenv("ENABLE_REKEY_JOB", "false")
	t.Setenv("CREMALINK_CORS_ORIGINS", "http://a.local, ,http://b.local")

	cfg, err := NewLoader(path, "v").WithEnvFile("").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10400, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 2*time.Second, cfg.Server.MonitorPollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.NudgerPollInterval)
	assert.Equal(t, 90*time.Second, cfg.Server.RekeyInterval)
	assert.False(t, cfg.Server.EnableRekeyJob)
	assert.True(t, cfg.Server.EnableNudgerJob)
	assert.Equal(t, 50, cfg.Server.QueueMaxSize)
	assert.Equal(t, "app-from-file", cfg.Cloud.AppID)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Server.CORSOrigins)
	assert.Equal(t, filepath.Join(dir, DefaultTokenFileName), cfg.TokenFile)
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "QUEUE_MAX_SIZE=42\nLOG_RING_SIZE=17\n")
	t.Setenv("LOG_RING_SIZE", "99")
	t.Cleanup(func() { _ = os.Unsetenv("QUEUE_MAX_SIZE") })

	cfg, err := NewLoader("", "v").WithEnvFile(envFile).Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Server.QueueMaxSize)
	assert.Equal(t, 99, cfg.Server.LogRingSize)
}

func TestLoad_StrictFile(t *testing.T) {
	dir := t.TempDir()

	unknown := writeFile(t, dir, "unknown.yaml", "server:\n  bogus: 1\n")
	_, err := NewLoader(unknown, "v").WithEnvFile("").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)

	multi := writeFile(t, dir, "multi.yaml", "logLevel: info\n---\nlogLevel: debug\n")
	_, err = NewLoader(multi, "v").WithEnvFile("").Load()
	assert.ErrorContains(t, err, "multiple documents")

	toml := writeFile(t, dir, "cfg.toml", "x = 1\n")
	_, err = NewLoader(toml, "v").WithEnvFile("").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	empty := writeFile(t, dir, "empty.yaml", "")
	_, err = NewLoader(empty, "v").WithEnvFile("").Load()
	assert.NoError(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("SERVER_PORT", "70000")
	t.Setenv("CREMALINK_DEVICE_SCHEME", "ftp")
	t.Setenv("CREMALINK_TOKEN_FILE", "/tmp/token.txt")

	_, err := NewLoader("", "v").WithEnvFile("").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrInvalid)

	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{"server.port", "local.deviceScheme", "tokenFile"}, ve.Fields())
}

func TestValidate_OptionalSections(t *testing.T) {
	cfg := Defaults()
	cfg.History.InfluxURL = "http://influx:8086"
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"
	cfg.Telemetry.SamplingRate = 2

	err := Validate(cfg)
	require.Error(t, err)
	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{
		"history.influxOrg", "history.influxBucket",
		"telemetry.exporter", "telemetry.samplingRate",
	}, ve.Fields())
}

func TestCloudConfig_ValidateLogin(t *testing.T) {
	c := Defaults().Cloud
	err := c.ValidateLogin()
	assert.ErrorIs(t, err, ErrMissingCredentials)

	c.AppID, c.AppSecret = "id", "secret"
	c.GigyaAPIKey, c.GigyaClientID, c.GigyaClientSecret = "key", "client", "client-secret"
	assert.NoError(t, c.ValidateLogin())
}
