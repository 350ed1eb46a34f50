// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ayla is a client for the Ayla Networks REST API that De'Longhi
// machines report to.
package ayla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/metrics"
	"github.com/ManuGH/cremalink/internal/platform/httpx"
	"github.com/ManuGH/cremalink/internal/resilience"
)

// User agents the mobile app sends.
const (
	APIUserAgent     = "datatransport/3.1.2 android/"
	TokenUserAgent   = "DeLonghiComfort/3 CFNetwork/1568.300.101 Darwin/24.2.0"
	BrowserUserAgent = "DeLonghiComfort/5.1.1"
)

const maxErrorBody = 512

// Config holds endpoints and client limits.
type Config struct {
	APIURL           string
	OAuthURL         string
	Timeout          time.Duration
	RateLimit        float64 // requests per second, 0 disables
	FailureThreshold int
	ResetTimeout     time.Duration
}

// ConfigFrom maps the application cloud section.
func ConfigFrom(c config.CloudConfig) Config {
	return Config{
		APIURL:           c.APIURL,
		OAuthURL:         c.OAuthURL,
		Timeout:          c.Timeout,
		RateLimit:        c.RateLimit,
		FailureThreshold: c.FailureThreshold,
		ResetTimeout:     c.ResetTimeout,
	}
}

// Tokens is the token pair issued by the OAuth service.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// Client talks to the Ayla API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger

	mu          sync.RWMutex
	accessToken string
}

// Option customizes NewClient.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAccessToken seeds the access token.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

// NewClient builds a client with a traced HTTP transport, a rate limiter
// and a circuit breaker.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.OAuthURL = strings.TrimRight(cfg.OAuthURL, "/")

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	c := &Client{
		cfg:     cfg,
		http:    httpx.NewClient(cfg.Timeout, httpx.WithTracing()),
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker("ayla", cfg.FailureThreshold, cfg.ResetTimeout,
			resilience.WithFailurePredicate(countsAgainstBreaker)),
		logger: log.WithComponent(log.ComponentCloud),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAccessToken replaces the token used for API calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the current access token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// RefreshAccessToken exchanges a refresh token for a new token pair and
// installs the new access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (Tokens, error) {
	body := map[string]any{"user": map[string]string{"refresh_token": refreshToken}}
	var out Tokens
	err := c.do(ctx, request{
		op:        "refresh_token",
		method:    http.MethodPost,
		url:       c.cfg.OAuthURL + "/users/refresh_token.json",
		userAgent: TokenUserAgent,
		body:      body,
		noAuth:    true,
	}, &out)
	if err != nil {
		return Tokens{}, err
	}
	if out.AccessToken == "" {
		return Tokens{}, &APIError{Sentinel: ErrBadResponse, Operation: "refresh_token", Body: "missing access_token"}
	}
	c.SetAccessToken(out.AccessToken)
	return out, nil
}

// SignIn exchanges an identity provider token (from the Gigya flow) for
// Ayla tokens. The refresh token may be empty.
func (c *Client) SignIn(ctx context.Context, appID, appSecret, idToken string) (Tokens, error) {
	body := map[string]string{"app_id": appID, "app_secret": appSecret, "token": idToken}
	var out Tokens
	err := c.do(ctx, request{
		op:        "token_sign_in",
		method:    http.MethodPost,
		url:       c.cfg.OAuthURL + "/api/v1/token_sign_in",
		userAgent: BrowserUserAgent,
		form:      body,
		noAuth:    true,
	}, &out)
	if err != nil {
		return Tokens{}, err
	}
	if out.AccessToken == "" {
		return Tokens{}, &APIError{Sentinel: ErrBadResponse, Operation: "token_sign_in", Body: "missing access_token"}
	}
	c.SetAccessToken(out.AccessToken)
	return out, nil
}

// Devices lists the account's devices.
func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var raw []struct {
		Device DeviceInfo `json:"device"`
	}
	if err := c.get(ctx, "devices", c.cfg.APIURL+"/devices.json", &raw); err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.Device)
	}
	return out, nil
}

// DSNs lists the serial numbers of the account's devices.
func (c *Client) DSNs(ctx context.Context) ([]string, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.DSN)
	}
	return out, nil
}

// Device fetches one device by serial number.
func (c *Client) Device(ctx context.Context, dsn string) (DeviceInfo, error) {
	var raw struct {
		Device DeviceInfo `json:"device"`
	}
	if err := c.get(ctx, "device", c.dsnURL(dsn, ".json"), &raw); err != nil {
		return DeviceInfo{}, err
	}
	if raw.Device.DSN == "" {
		raw.Device.DSN = dsn
	}
	return raw.Device, nil
}

// LANKey fetches the device's LAN key. It is empty when LAN mode is disabled.
func (c *Client) LANKey(ctx context.Context, dsn string) (string, error) {
	var raw struct {
		LANIP struct {
			Key string `json:"lanip_key"`
		} `json:"lanip"`
	}
	if err := c.get(ctx, "lan_key", c.dsnURL(dsn, "/lan.json"), &raw); err != nil {
		return "", err
	}
	return raw.LANIP.Key, nil
}

// Properties fetches every property of the device.
func (c *Client) Properties(ctx context.Context, dsn string) ([]Property, error) {
	var raw []propertyEnvelope
	if err := c.get(ctx, "properties", c.dsnURL(dsn, "/properties.json"), &raw); err != nil {
		return nil, err
	}
	out := make([]Property, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.Property)
	}
	return out, nil
}

// Property fetches a single property. A property the cloud does not know
// yields ErrNotFound.
func (c *Client) Property(ctx context.Context, dsn, name string) (Property, error) {
	u := c.dsnURL(dsn, "/properties.json") + "?" + url.Values{"names[]": {name}}.Encode()
	var raw []propertyEnvelope
	if err := c.get(ctx, "property", u, &raw); err != nil {
		return Property{}, err
	}
	if len(raw) == 0 {
		return Property{}, &APIError{Sentinel: ErrNotFound, Operation: "property", Body: name}
	}
	return raw[0].Property, nil
}

// PostDatapoint writes a value to a device property.
func (c *Client) PostDatapoint(ctx context.Context, dsn, property, value string) (Datapoint, error) {
	body := map[string]any{"datapoint": map[string]string{"value": value}}
	var raw struct {
		Datapoint Datapoint `json:"datapoint"`
	}
	err := c.do(ctx, request{
		op:        "datapoint",
		method:    http.MethodPost,
		url:       c.dsnURL(dsn, "/properties/"+url.PathEscape(property)+"/datapoints.json"),
		userAgent: APIUserAgent,
		body:      body,
	}, &raw)
	return raw.Datapoint, err
}

func (c *Client) dsnURL(dsn, suffix string) string {
	return c.cfg.APIURL + "/dsns/" + url.PathEscape(dsn) + suffix
}

func (c *Client) get(ctx context.Context, op, u string, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, url: u, userAgent: APIUserAgent}, out)
}

type request struct {
	op        string
	method    string
	url       string
	userAgent string
	body      any
	form      map[string]string
	noAuth    bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	start := time.Now()
	err := c.breaker.ExecuteCtx(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, r, out)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &APIError{Sentinel: ErrUpstreamUnavailable, Operation: r.op, Err: err}
	}
	metrics.ObserveCloudRequest(r.op, time.Since(start), err)

	logger := log.WithContext(ctx, c.logger)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "cloud.request_failed").Str("op", r.op).Msg("ayla request failed")
	} else {
		logger.Debug().Str(log.FieldEvent, "cloud.request").Str("op", r.op).Dur("duration", time.Since(start)).Msg("ayla request")
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.form != nil:
		vals := url.Values{}
		for k, v := range r.form {
			vals.Set(k, v)
		}
		body = strings.NewReader(vals.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.body != nil:
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", r.op, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: r.op, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !r.noAuth {
		token := c.AccessToken()
		if token == "" {
			return ErrNoAccessToken
		}
		req.Header.Set("Authorization", "auth_token "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return err
		}
		return &APIError{Sentinel: classifyTransport(err), Operation: r.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &APIError{Sentinel: ErrUpstreamUnavailable, Operation: r.op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &APIError{Sentinel: classifyStatus(resp.StatusCode), Operation: r.op, Status: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: r.op, Status: resp.StatusCode, Err: err}
	}
	return nil
}
