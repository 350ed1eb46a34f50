// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ayla

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenStore_RequiresJSON(t *testing.T) {
	_, err := NewTokenStore("/tmp/token.txt")
	assert.ErrorIs(t, err, ErrTokenPath)
}

func TestTokenStore_MissingWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "token.json")
	s, err := NewTokenStore(path)
	require.NoError(t, err)

	_, err = s.RefreshToken()
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Contains(t, err.Error(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh_token":""}`, string(data))
}

func TestTokenStore_SavePreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"old","note":"keep"}`), 0o600))
	s, err := NewTokenStore(path)
	require.NoError(t, err)

	tok, err := s.RefreshToken()
	require.NoError(t, err)
	assert.Equal(t, "old", tok)

	require.NoError(t, s.Save("new"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh_token":"new","note":"keep"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTokenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{oops`), 0o600))
	s, _ := NewTokenStore(path)
	_, err := s.RefreshToken()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRefreshToken)
}

func TestSession_AuthenticateRotatesToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/users/refresh_token.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"access_token": "fresh", "refresh_token": "rotated"})
	})
	mux.HandleFunc("GET /apiv1/devices.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "auth_token fresh", r.Header.Get("Authorization"))
		writeJSON(w, []any{map[string]any{"device": map[string]any{"dsn": testDSN}}})
	})
	mux.HandleFunc("GET /apiv1/dsns/"+testDSN+".json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"device": map[string]any{"model": "DL-striker-cb"}})
	})
	c := newTestClient(t, mux, WithAccessToken(""))

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"seed"}`), 0o600))
	store, err := NewTokenStore(path)
	require.NoError(t, err)

	sess := NewSession(c, store)
	ctx := context.Background()
	require.NoError(t, sess.Authenticate(ctx))

	var doc map[string]string
	data, _ := os.ReadFile(path)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "rotated", doc["refresh_token"])

	d, err := sess.Device(ctx, testDSN)
	require.NoError(t, err)
	assert.Equal(t, testDSN, d.DSN)
	assert.Equal(t, "DL-striker-cb", d.Model)

	_, err = sess.Device(ctx, "not-mine")
	assert.ErrorIs(t, err, ErrNotFound)
}
