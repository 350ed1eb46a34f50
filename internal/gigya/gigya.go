// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gigya performs the De'Longhi account login: the Gigya OIDC flow
// followed by the Ayla token sign-in.
package gigya

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/ManuGH/cremalink/internal/ayla"
	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/metrics"
	"github.com/ManuGH/cremalink/internal/platform/httpx"
)

const (
	redirectURI  = "https://google.it"
	scope        = "openid email profile UID comfort en alexa"
	consentScope = "openid+email+profile+UID+comfort+en+alexa"
	sdk          = "js_latest"
)

// Step names reported in AuthError and metrics.
const (
	StepAuthorize         = "authorize"
	StepGetIDs            = "get_ids"
	StepLogin             = "login"
	StepUserInfo          = "user_info"
	StepConsent           = "consent"
	StepAuthorizeContinue = "authorize_continue"
	StepTokenExchange     = "token_exchange"
	StepAylaSignIn        = "ayla_sign_in"
)

var (
	// ErrLoginRejected is returned when Gigya refuses the credentials.
	ErrLoginRejected = errors.New("login rejected")
	// ErrMissingField is returned when a response lacks a required field.
	ErrMissingField = errors.New("response missing field")
)

// AuthError names the login step that failed.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gigya: %s: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Config holds the Gigya endpoints and app credentials.
type Config struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	SDKBuild     string
	BaseURL      string
	SocializeURL string
	AccountsURL  string
	ConsentURL   string
	AppID        string
	AppSecret    string
	Timeout      time.Duration
}

// ConfigFrom maps the application cloud section.
func ConfigFrom(c config.CloudConfig) Config {
	return Config{
		APIKey:       c.GigyaAPIKey,
		ClientID:     c.GigyaClientID,
		ClientSecret: c.GigyaClientSecret,
		SDKBuild:     c.GigyaSDKBuild,
		BaseURL:      strings.TrimRight(c.GigyaBaseURL, "/"),
		SocializeURL: strings.TrimRight(c.SocializeURL, "/"),
		AccountsURL:  strings.TrimRight(c.AccountsURL, "/"),
		ConsentURL:   strings.TrimRight(c.ConsentURL, "/"),
		AppID:        c.AppID,
		AppSecret:    c.AppSecret,
		Timeout:      c.Timeout,
	}
}

// Authenticator runs the login flow.
type Authenticator struct {
	cfg    Config
	http   *http.Client
	ayla   *ayla.Client
	logger zerolog.Logger
	now    func() time.Time
}

// New builds an authenticator. The Ayla client performs the final sign-in.
func New(cfg Config, aylaClient *ayla.Client) (*Authenticator, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if cfg.SDKBuild == "" {
		cfg.SDKBuild = config.DefaultGigyaSDKBuild
	}
	return &Authenticator{
		cfg:    cfg,
		http:   httpx.NewClient(cfg.Timeout, httpx.WithoutRedirects(), httpx.WithCookieJar(jar), httpx.WithTracing()),
		ayla:   aylaClient,
		logger: log.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}, nil
}

type session struct {
	context    string
	ucid       string
	gmid       string
	gmidTicket string
	loginToken string
	uid        string
	uidSig     string
	sigTS      string
	consentSig string
	code       string
	idpToken   string
}

// Login exchanges account credentials for Ayla tokens.
func (a *Authenticator) Login(ctx context.Context, email, password string) (ayla.Tokens, error) {
	s := &session{}
	steps := []struct {
		name string
		fn   func(context.Context, *session) error
	}{
		{StepAuthorize, a.authorize},
		{StepGetIDs, a.getIDs},
		{StepLogin, func(ctx context.Context, s *session) error { return a.login(ctx, s, email, password) }},
		{StepUserInfo, a.userInfo},
		{StepConsent, a.consent},
		{StepAuthorizeContinue, a.authorizeContinue},
		{StepTokenExchange, a.tokenExchange},
	}
	for _, st := range steps {
		err := st.fn(ctx, s)
		metrics.RecordAuthStep(st.name, err)
		if err != nil {
			a.logger.Warn().Str(log.FieldEvent, "auth.step_failed").Str("step", st.name).Err(err).Msg("login step failed")
			return ayla.Tokens{}, &AuthError{Step: st.name, Err: err}
		}
		a.logger.Debug().Str(log.FieldEvent, "auth.step_ok").Str("step", st.name).Msg("login step completed")
	}

	tokens, err := a.ayla.SignIn(ctx, a.cfg.AppID, a.cfg.AppSecret, s.idpToken)
	metrics.RecordAuthStep(StepAylaSignIn, err)
	if err != nil {
		return ayla.Tokens{}, &AuthError{Step: StepAylaSignIn, Err: err}
	}
	a.logger.Info().Str(log.FieldEvent, "auth.login_ok").Msg("account login completed")
	return tokens, nil
}

func (a *Authenticator) oidcURL(suffix string) string {
	return a.cfg.BaseURL + "/oidc/op/v1.0/" + url.PathEscape(a.cfg.APIKey) + suffix
}

func (a *Authenticator) pageURL() string { return a.cfg.ConsentURL + "/" }

func (a *Authenticator) authorize(ctx context.Context, s *session) error {
	q := url.Values{
		"client_id":     {a.cfg.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"scope":         {scope},
		"nonce":         {strconv.FormatInt(a.now().Unix(), 10)},
	}
	loc, err := a.redirect(ctx, a.oidcURL("/authorize")+"?"+q.Encode())
	if err != nil {
		return err
	}
	s.context = queryParam(loc, "context")
	if s.context == "" {
		return errors.New("failed to get OIDC context from authorize redirect")
	}
	return nil
}

func (a *Authenticator) getIDs(ctx context.Context, s *session) error {
	q := url.Values{
		"APIKey":        {a.cfg.APIKey},
		"includeTicket": {"True"},
		"pageURL":       {a.pageURL()},
		"sdk":           {sdk},
		"sdkBuild":      {a.cfg.SDKBuild},
		"format":        {"json"},
	}
	var out struct {
		UCID       string `json:"ucid"`
		GMID       string `json:"gmid"`
		GMIDTicket string `json:"gmidTicket"`
	}
	if err := a.getJSON(ctx, a.cfg.SocializeURL+"/socialize.getIDs?"+q.Encode(), &out); err != nil {
		return err
	}
	if err := requireFields(map[string]string{"ucid": out.UCID, "gmid": out.GMID, "gmidTicket": out.GMIDTicket}); err != nil {
		return err
	}
	s.ucid, s.gmid, s.gmidTicket = out.UCID, out.GMID, out.GMIDTicket
	return nil
}

func (a *Authenticator) login(ctx context.Context, s *session, email, password string) error {
	form := url.Values{
		"loginID":           {email},
		"password":          {password},
		"sessionExpiration": {"7884009"},
		"targetEnv":         {"jssdk"},
		"include":           {"profile,data,emails,subscriptions,preferences"},
		"includeUserInfo":   {"True"},
		"loginMode":         {"standard"},
		"APIKey":            {a.cfg.APIKey},
		"source":            {"showScreenSet"},
		"sdk":               {sdk},
		"authMode":          {"cookie"},
		"pageURL":           {a.pageURL()},
		"gmid":              {s.gmid},
		"ucid":              {s.ucid},
		"sdkBuild":          {a.cfg.SDKBuild},
		"format":            {"json"},
	}
	var out struct {
		ErrorCode    int    `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
		SessionInfo  struct {
			LoginToken string `json:"login_token"`
		} `json:"sessionInfo"`
	}
	if err := a.postForm(ctx, a.cfg.AccountsURL+"/accounts.login", form, nil, &out); err != nil {
		return err
	}
	if out.ErrorCode != 0 {
		msg := out.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Errorf("%w: %s", ErrLoginRejected, msg)
	}
	if out.SessionInfo.LoginToken == "" {
		return fmt.Errorf("%w: sessionInfo.login_token", ErrMissingField)
	}
	s.loginToken = out.SessionInfo.LoginToken
	return nil
}

func (a *Authenticator) userInfo(ctx context.Context, s *session) error {
	form := url.Values{
		"enabledProviders": {"*"},
		"APIKey":           {a.cfg.APIKey},
		"sdk":              {sdk},
		"login_token":      {s.loginToken},
		"authMode":         {"cookie"},
		"pageURL":          {a.pageURL()},
		"gmid":             {s.gmid},
		"ucid":             {s.ucid},
		"sdkBuild":         {a.cfg.SDKBuild},
		"format":           {"json"},
	}
	var out struct {
		UID          string          `json:"UID"`
		UIDSignature string          `json:"UIDSignature"`
		SigTimestamp json.RawMessage `json:"signatureTimestamp"`
	}
	if err := a.postForm(ctx, a.cfg.SocializeURL+"/socialize.getUserInfo", form, nil, &out); err != nil {
		return err
	}
	ts := strings.Trim(string(out.SigTimestamp), `"`)
	if err := requireFields(map[string]string{"UID": out.UID, "UIDSignature": out.UIDSignature, "signatureTimestamp": ts}); err != nil {
		return err
	}
	s.uid, s.uidSig, s.sigTS = out.UID, out.UIDSignature, ts
	return nil
}

func (a *Authenticator) consent(ctx context.Context, s *session) error {
	q := url.Values{
		"context":            {s.context},
		"clientID":           {a.cfg.ClientID},
		"scope":              {consentScope},
		"UID":                {s.uid},
		"UIDSignature":       {s.uidSig},
		"signatureTimestamp": {s.sigTS},
	}
	body, err := a.getText(ctx, a.cfg.ConsentURL+"/OIDCConsentPage.php?"+q.Encode())
	if err != nil {
		return err
	}
	sig, ok := extractConsentSignature(body)
	if !ok {
		return errors.New("failed to extract consent signature")
	}
	s.consentSig = sig
	return nil
}

// extractConsentSignature finds the value of the consentObj2Sig constant in
// the consent page script.
func extractConsentSignature(page string) (string, bool) {
	const marker = "const consentObj2Sig = '"
	_, rest, ok := strings.Cut(page, marker)
	if !ok {
		return "", false
	}
	sig, _, ok := strings.Cut(rest, "';")
	if !ok {
		return "", false
	}
	return sig, true
}

func (a *Authenticator) authorizeContinue(ctx context.Context, s *session) error {
	consent, err := json.Marshal(struct {
		Scope    string `json:"scope"`
		ClientID string `json:"clientID"`
		Context  string `json:"context"`
		UID      string `json:"UID"`
		Consent  bool   `json:"consent"`
	}{scope, a.cfg.ClientID, s.context, s.uid, true})
	if err != nil {
		return err
	}
	q := url.Values{
		"context":     {s.context},
		"login_token": {s.loginToken},
		"consent":     {string(consent)},
		"sig":         {s.consentSig},
		"gmidTicket":  {s.gmidTicket},
	}
	loc, err := a.redirect(ctx, a.oidcURL("/authorize/continue")+"?"+q.Encode())
	if err != nil {
		return err
	}
	s.code = queryParam(loc, "code")
	if s.code == "" {
		return errors.New("failed to get authorization code from redirect")
	}
	return nil
}

func (a *Authenticator) tokenExchange(ctx context.Context, s *session) error {
	form := url.Values{
		"code":         {s.code},
		"grant_type":   {"authorization_code"},
		"redirect_uri": {redirectURI},
	}
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.postForm(ctx, a.oidcURL("/token"), form, map[string]string{"Authorization": "Basic " + basic}, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("%w: access_token", ErrMissingField)
	}
	s.idpToken = out.AccessToken
	return nil
}

func (a *Authenticator) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ayla.BrowserUserAgent)
	return req, nil
}

// redirect issues a GET and returns the Location header of the response.
func (a *Authenticator) redirect(ctx context.Context, u string) (string, error) {
	req, err := a.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.Header.Get("Location"), nil
}

func (a *Authenticator) getText(ctx context.Context, u string) (string, error) {
	req, err := a.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	return a.read(req)
}

func (a *Authenticator) getJSON(ctx context.Context, u string, out any) error {
	req, err := a.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return a.decode(req, out)
}

func (a *Authenticator) postForm(ctx context.Context, u string, form url.Values, headers map[string]string, out any) error {
	req, err := a.newRequest(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return a.decode(req, out)
}

func (a *Authenticator) read(req *http.Request) (string, error) {
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(data), nil
}

func (a *Authenticator) decode(req *http.Request, out any) error {
	body, err := a.read(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func queryParam(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}

func requireFields(fields map[string]string) error {
	for _, name := range sortedKeys(fields) {
		if fields[name] == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
