// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpx

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_DefaultTimeoutAndTransport(t *testing.T) {
	client := NewClient(0)
	assert.Equal(t, defaultClientTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok, "transport type = %T", client.Transport)
	assert.Equal(t, defaultMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, transport.IdleConnTimeout)
	assert.Nil(t, client.CheckRedirect)
}

func TestNewClient_CapsDialAndHeaderTimeouts(t *testing.T) {
	transport := NewClient(10 * time.Second).Transport.(*http.Transport)
	assert.Equal(t, defaultDialTimeout, transport.TLSHandshakeTimeout)
	assert.Equal(t, defaultResponseHeaderTimeout, transport.ResponseHeaderTimeout)

	short := 1500 * time.Millisecond
	client := NewClient(short)
	transport = client.Transport.(*http.Transport)
	assert.Equal(t, short, client.Timeout)
	assert.Equal(t, short, transport.TLSHandshakeTimeout)
	assert.Equal(t, short, transport.ResponseHeaderTimeout)
}

func TestNewClient_Options(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := NewClient(time.Second, WithTracing(), WithCookieJar(jar))
	_, plain := client.Transport.(*http.Transport)
	assert.False(t, plain, "tracing wraps the transport")
	assert.Equal(t, jar, client.Jar)
}

func TestNewClient_WithoutRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://example.invalid/cb?code=abc", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := NewClient(time.Second, WithoutRedirects()).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.invalid/cb?code=abc", resp.Header.Get("Location"))
}

func TestDeviceTLSConfig(t *testing.T) {
	cfg, err := DeviceTLSConfig(false, "")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	cfg, err = DeviceTLSConfig(true, "")
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)

	_, err = DeviceTLSConfig(true, filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = DeviceTLSConfig(false, bad)
	assert.ErrorContains(t, err, "no certificates")
}
