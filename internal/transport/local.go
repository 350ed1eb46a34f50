// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

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

	"github.com/ManuGH/cremalink/internal/config"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/platform/httpx"
	"github.com/ManuGH/cremalink/internal/properties"
)

// LocalConfig describes the device and the LAN server that talks to it.
type LocalConfig struct {
	ServerURL     string
	DSN           string
	LANKey        string
	DeviceIP      string
	DeviceScheme  string
	AutoConfigure bool
	Timeout       time.Duration
}

// LocalConfigFrom fills the server settings from the application config.
func LocalConfigFrom(c config.LocalConfig, dsn, lanKey, deviceIP string) LocalConfig {
	return LocalConfig{
		ServerURL:     c.ServerURL,
		DSN:           dsn,
		LANKey:        lanKey,
		DeviceIP:      deviceIP,
		DeviceScheme:  c.DeviceScheme,
		AutoConfigure: c.AutoConfigure,
		Timeout:       c.Timeout,
	}
}

// ServerError is a non-success reply from the LAN server.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, e.Body)
}

func (e *ServerError) Unwrap() error { return ErrServerResponse }

// Local reaches the machine through a running LAN server.
type Local struct {
	cfg  LocalConfig
	http *http.Client

	mu         sync.Mutex
	configured bool
	maps       mappings
}

// NewLocal builds the transport and configures the server when
// AutoConfigure is set.
func NewLocal(ctx context.Context, cfg LocalConfig) (*Local, error) {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.DeviceScheme == "" {
		cfg.DeviceScheme = "http"
	}
	t := &Local{cfg: cfg, http: httpx.NewClient(cfg.Timeout, httpx.WithTracing())}
	if cfg.AutoConfigure {
		if err := t.Configure(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Local) Kind() string     { return KindLocal }
func (t *Local) DeviceID() string { return t.cfg.DSN }

// Configure hands the device coordinates to the server.
func (t *Local) Configure(ctx context.Context) error {
	t.mu.Lock()
	monitorName := t.maps.monitorProperty()
	t.mu.Unlock()

	body := map[string]any{
		"dsn":                   t.cfg.DSN,
		"device_ip":             t.cfg.DeviceIP,
		"lan_key":               t.cfg.LANKey,
		"device_scheme":         t.cfg.DeviceScheme,
		"monitor_property_name": monitorName,
	}
	if _, err := t.call(ctx, "configure", http.MethodPost, "/configure", body); err != nil {
		return err
	}
	t.mu.Lock()
	t.configured = true
	t.mu.Unlock()
	return nil
}

func (t *Local) isConfigured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.configured
}

// SendCommand queues a command frame, configuring the server first if needed.
func (t *Local) SendCommand(ctx context.Context, frameHex string) (map[string]any, error) {
	if !t.isConfigured() {
		if err := t.Configure(ctx); err != nil {
			return nil, err
		}
	}
	data, err := t.call(ctx, "send command", http.MethodPost, "/command", map[string]string{"command": frameHex})
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode command response: %w", err)
		}
	}
	return out, nil
}

// Properties returns the properties the machine has pushed to the server.
func (t *Local) Properties(ctx context.Context) (*properties.Snapshot, error) {
	data, err := t.call(ctx, "get properties", http.MethodGet, "/get_properties", nil)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	raw, ok := payload["properties"].(map[string]any)
	if !ok {
		raw = payload
	}
	var at time.Time
	if ts, ok := payload["received_at"].(float64); ok && ts > 0 {
		sec := int64(ts)
		at = time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
	}
	return properties.New(raw, at), nil
}

// Property looks in the snapshot first, then asks the server directly.
func (t *Local) Property(ctx context.Context, name string) (any, error) {
	snap, err := t.Properties(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := snap.Value(name); ok {
		return v, nil
	}

	data, err := t.call(ctx, "get property", http.MethodGet, "/properties/"+url.PathEscape(name), nil)
	var serr *ServerError
	if errors.As(err, &serr) && serr.Status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var out struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode property: %w", err)
	}
	return out.Value, nil
}

// Monitor returns the latest monitor frame the server has received.
func (t *Local) Monitor(ctx context.Context) (monitor.Snapshot, error) {
	data, err := t.call(ctx, "get monitor", http.MethodGet, "/get_monitor", nil)
	if err != nil {
		return monitor.Snapshot{}, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return monitor.Snapshot{}, fmt.Errorf("failed to parse monitor payload: %w", err)
	}
	return monitor.BuildSnapshot(payload, monitor.SourceLocal, t.cfg.DSN), nil
}

// RefreshMonitor asks the server to request a fresh monitor frame.
func (t *Local) RefreshMonitor(ctx context.Context) error {
	_, err := t.call(ctx, "refresh monitor", http.MethodGet, "/refresh_monitor", nil)
	return err
}

// Health reports whether the server answers.
func (t *Local) Health(ctx context.Context) (Health, error) {
	data, err := t.call(ctx, "health", http.MethodGet, "/health", nil)
	if err != nil {
		return Health{}, err
	}
	return Health{Online: true, Status: strings.TrimSpace(string(data))}, nil
}

// SetMappings stores the device map parts and reconfigures the server when
// auto-configure is on and the monitor property changed.
func (t *Local) SetMappings(ctx context.Context, commands, props map[string]string) error {
	t.mu.Lock()
	previous := t.maps.monitorProperty()
	t.maps = mappings{commands: cloneMap(commands), props: cloneMap(props)}
	updated := t.maps.monitorProperty()
	needs := t.cfg.AutoConfigure && (!t.configured || previous != updated)
	t.mu.Unlock()

	if needs {
		return t.Configure(ctx)
	}
	return nil
}

func (t *Local) call(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.cfg.ServerURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at %s during %s (start it with `cremalink serve` or adjust local.serverUrl): %w",
			ErrServerUnreachable, t.cfg.ServerURL, op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &ServerError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
