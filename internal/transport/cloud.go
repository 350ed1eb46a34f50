// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/cremalink/internal/ayla"
	"github.com/ManuGH/cremalink/internal/cache"
	"github.com/ManuGH/cremalink/internal/ecam/command"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/properties"
)

// CommandProperty is the property that carries command datapoints.
const CommandProperty = "data_request"

// Cloud reaches the machine through the Ayla API.
type Cloud struct {
	client *ayla.Client
	dsn    string
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	info   ayla.DeviceInfo
	lanKey string
	maps   mappings
}

// CloudOption customizes NewCloud.
type CloudOption func(*Cloud)

// WithCache caches property snapshots for ttl.
func WithCache(c cache.Cache, ttl time.Duration) CloudOption {
	return func(t *Cloud) {
		t.cache = c
		t.ttl = ttl
	}
}

// NewCloud fetches the device record and LAN key.
func NewCloud(ctx context.Context, client *ayla.Client, dsn string, opts ...CloudOption) (*Cloud, error) {
	t := &Cloud{
		client: client,
		dsn:    dsn,
		cache:  cache.NewNoOpCache(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	info, err := client.Device(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("fetch device %s: %w", dsn, err)
	}
	key, err := client.LANKey(ctx, dsn)
	if err != nil && !errors.Is(err, ayla.ErrNotFound) {
		return nil, fmt.Errorf("fetch lan key %s: %w", dsn, err)
	}
	t.info = info
	t.lanKey = key
	return t, nil
}

func (t *Cloud) Kind() string     { return KindCloud }
func (t *Cloud) DeviceID() string { return t.dsn }

// Info returns the device record fetched at construction or by Health.
func (t *Cloud) Info() ayla.DeviceInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// LANKey returns the device's LAN key, empty when LAN mode is off.
func (t *Cloud) LANKey() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lanKey
}

// Configure is a no-op: the cloud needs no setup.
func (t *Cloud) Configure(context.Context) error { return nil }

// SendCommand wraps the frame as a timestamped datapoint and posts it.
func (t *Cloud) SendCommand(ctx context.Context, frameHex string) (map[string]any, error) {
	value, err := command.HexToDatapoint(frameHex, t.now())
	if err != nil {
		return nil, err
	}
	dp, err := t.client.PostDatapoint(ctx, t.dsn, CommandProperty, value)
	if err != nil {
		return nil, err
	}
	t.cache.Delete(ctx, t.cacheKey())
	return map[string]any{"datapoint": map[string]any{"value": dp.Value, "created_at": dp.CreatedAt}}, nil
}

type cachedProperties struct {
	Raw        map[string]any `json:"raw"`
	ReceivedAt time.Time      `json:"received_at"`
}

func (t *Cloud) cacheKey() string { return "props:" + t.dsn }

// Properties returns every property keyed by name.
func (t *Cloud) Properties(ctx context.Context) (*properties.Snapshot, error) {
	if hit, ok := cache.GetJSON[cachedProperties](ctx, t.cache, t.cacheKey()); ok {
		return properties.New(hit.Raw, hit.ReceivedAt), nil
	}

	props, err := t.client.Properties(ctx, t.dsn)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]any, len(props))
	for _, p := range props {
		if p.Name == "" {
			continue
		}
		raw[p.Name] = map[string]any{"property": p.Raw}
	}
	entry := cachedProperties{Raw: raw, ReceivedAt: t.now().UTC()}
	if t.ttl > 0 {
		cache.SetJSON(ctx, t.cache, t.cacheKey(), entry, t.ttl)
	}
	return properties.New(entry.Raw, entry.ReceivedAt), nil
}

// Property returns the value of one property.
func (t *Cloud) Property(ctx context.Context, name string) (any, error) {
	p, err := t.client.Property(ctx, t.dsn, name)
	if errors.Is(err, ayla.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return p.Value, nil
}

// Monitor reads the monitor property.
func (t *Cloud) Monitor(ctx context.Context) (monitor.Snapshot, error) {
	t.mu.RLock()
	name := t.maps.monitorProperty()
	t.mu.RUnlock()

	var (
		rawB64 string
		at     = t.now().UTC()
	)
	p, err := t.client.Property(ctx, t.dsn, name)
	switch {
	case err == nil:
		rawB64, _ = p.StringValue()
		if ts, ok := p.Time(); ok {
			at = ts
		}
	case errors.Is(err, ayla.ErrNotFound):
	default:
		return monitor.Snapshot{}, err
	}
	return monitor.FromB64(rawB64, at, monitor.SourceCloud, t.dsn), nil
}

// RefreshMonitor is a no-op: the cloud always serves the latest value.
func (t *Cloud) RefreshMonitor(context.Context) error { return nil }

// Health re-reads the device record.
func (t *Cloud) Health(ctx context.Context) (Health, error) {
	info, err := t.client.Device(ctx, t.dsn)
	if err != nil {
		return Health{}, err
	}
	t.mu.Lock()
	t.info = info
	t.mu.Unlock()
	return Health{Online: info.Online(), Status: info.ConnectionStatus}, nil
}

// SetMappings stores the device map parts.
func (t *Cloud) SetMappings(_ context.Context, commands, props map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maps = mappings{commands: cloneMap(commands), props: cloneMap(props)}
	return nil
}
