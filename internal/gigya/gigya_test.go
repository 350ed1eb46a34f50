// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package gigya

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cremalink/internal/ayla"
)

type fakeIdP struct {
	t            *testing.T
	loginError   bool
	noConsentSig bool
}

func (f *fakeIdP) handler() http.Handler {
	t := f.t
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oidc/op/v1.0/api-key/authorize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ayla.BrowserUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "client-id", r.URL.Query().Get("client_id"))
		assert.Equal(t, scope, r.URL.Query().Get("scope"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("nonce"))
		w.Header().Set("Location", "https://consent.example/page?context=ctx-1")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /socialize.getIDs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "16650", r.URL.Query().Get("sdkBuild"))
		writeJSON(w, map[string]any{"ucid": "u1", "gmid": "g1", "gmidTicket": "ticket"})
	})
	mux.HandleFunc("POST /accounts.login", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "user@example.com", r.Form.Get("loginID"))
		assert.Equal(t, "g1", r.Form.Get("gmid"))
		if f.loginError || r.Form.Get("password") != "pw" {
			writeJSON(w, map[string]any{"errorCode": 403042, "errorMessage": "Invalid LoginID"})
			return
		}
		writeJSON(w, map[string]any{"errorCode": 0, "sessionInfo": map[string]any{"login_token": "lt"}})
	})
	mux.HandleFunc("POST /socialize.getUserInfo", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "lt", r.Form.Get("login_token"))
		writeJSON(w, map[string]any{"UID": "uid-1", "UIDSignature": "sig-1", "signatureTimestamp": 1700000000})
	})
	mux.HandleFunc("GET /OIDCConsentPage.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ctx-1", r.URL.Query().Get("context"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("signatureTimestamp"))
		assert.Equal(t, consentScope, r.URL.Query().Get("scope"))
		if f.noConsentSig {
			_, _ = w.Write([]byte("<html>nothing</html>"))
			return
		}
		_, _ = w.Write([]byte("<script>const consentObj2Sig = 'consent-sig';</script>"))
	})
	mux.HandleFunc("GET /oidc/op/v1.0/api-key/authorize/continue", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "consent-sig", q.Get("sig"))
		assert.Equal(t, "ticket", q.Get("gmidTicket"))
		assert.JSONEq(t, `{"scope":"openid email profile UID comfort en alexa","clientID":"client-id","context":"ctx-1","UID":"uid-1","consent":true}`, q.Get("consent"))
		w.Header().Set("Location", "https://google.it/?code=auth-code")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("POST /oidc/op/v1.0/api-key/token", func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.Form.Get("code"))
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		writeJSON(w, map[string]any{"access_token": "idp-token"})
	})
	mux.HandleFunc("POST /oauth/api/v1/token_sign_in", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "idp-token", r.Form.Get("token"))
		assert.Equal(t, "app-id", r.Form.Get("app_id"))
		writeJSON(w, map[string]any{"access_token": "ayla-access", "refresh_token": "ayla-refresh"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newAuthenticator(t *testing.T, f *fakeIdP) *Authenticator {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	aylaClient := ayla.NewClient(ayla.Config{APIURL: srv.URL, OAuthURL: srv.URL + "/oauth", Timeout: 2 * time.Second})
	a, err := New(Config{
		APIKey:       "api-key",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      srv.URL,
		SocializeURL: srv.URL,
		AccountsURL:  srv.URL,
		ConsentURL:   srv.URL,
		AppID:        "app-id",
		AppSecret:    "app-secret",
		Timeout:      2 * time.Second,
	}, aylaClient)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a
}

func TestLogin_Success(t *testing.T) {
	a := newAuthenticator(t, &fakeIdP{t: t})
	tokens, err := a.Login(context.Background(), "user@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, ayla.Tokens{AccessToken: "ayla-access", RefreshToken: "ayla-refresh"}, tokens)
}

func TestLogin_Rejected(t *testing.T) {
	a := newAuthenticator(t, &fakeIdP{t: t})
	_, err := a.Login(context.Background(), "user@example.com", "wrong")
	require.ErrorIs(t, err, ErrLoginRejected)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StepLogin, authErr.Step)
	assert.Contains(t, err.Error(), "Invalid LoginID")
}

func TestLogin_MissingConsentSignature(t *testing.T) {
	a := newAuthenticator(t, &fakeIdP{t: t, noConsentSig: true})
	_, err := a.Login(context.Background(), "user@example.com", "pw")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StepConsent, authErr.Step)
}

func TestLogin_AuthorizeWithoutContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL, APIKey: "k"}, ayla.NewClient(ayla.Config{}))
	require.NoError(t, err)
	_, err = a.Login(context.Background(), "e", "p")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StepAuthorize, authErr.Step)
}

func TestExtractConsentSignature(t *testing.T) {
	tests := []struct {
		page string
		want string
		ok   bool
	}{
		{"x const consentObj2Sig = 'abc'; y", "abc", true},
		{"const consentObj2Sig = 'abc", "", false},
		{"nothing", "", false},
	}
	for _, tt := range tests {
		got, ok := extractConsentSignature(tt.page)
		assert.Equal(t, tt.ok, ok, tt.page)
		assert.Equal(t, tt.want, got, tt.page)
	}
}
