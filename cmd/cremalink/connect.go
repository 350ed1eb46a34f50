// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/cremalink/internal/ayla"
	"github.com/ManuGH/cremalink/internal/cache"
	"github.com/ManuGH/cremalink/internal/device"
	"github.com/ManuGH/cremalink/internal/devicemap"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/transport"
)

// errAmbiguousDevice is returned when --dsn is needed to pick a device.
var errAmbiguousDevice = errors.New("several devices on the account, pass --dsn")

type deviceOptions struct {
	root *rootOptions

	dsn       string
	model     string
	local     bool
	deviceIP  string
	lanKey    string
	serverURL string
}

func addDeviceFlags(cmd *cobra.Command, root *rootOptions) *deviceOptions {
	o := &deviceOptions{root: root}
	f := cmd.Flags()
	f.StringVar(&o.dsn, "dsn", "", "device serial number (defaults to the only device on the account)")
	f.StringVar(&o.model, "model", "", "device map model id, e.g. ECAM450 (defaults to the cloud's oem_model)")
	f.BoolVar(&o.local, "local", false, "talk to the machine through a running `cremalink serve`")
	f.StringVar(&o.deviceIP, "device-ip", "", "machine LAN address (local mode; fetched from the cloud when empty)")
	f.StringVar(&o.lanKey, "lan-key", "", "machine LAN key (local mode; fetched from the cloud when empty)")
	f.StringVar(&o.serverURL, "server-url", "", "LAN server base URL (local mode)")
	return o
}

// session is an authenticated Ayla session plus the cache used for it.
type session struct {
	*ayla.Session
	cache cache.Cache
}

func (o *deviceOptions) session(ctx context.Context) (*session, error) {
	path, err := o.root.tokenFile()
	if err != nil {
		return nil, err
	}
	tokens, err := ayla.NewTokenStore(path)
	if err != nil {
		return nil, err
	}
	s := ayla.NewSession(ayla.NewClient(ayla.ConfigFrom(o.root.cfg.Cloud)), tokens)
	if err := s.Authenticate(ctx); err != nil {
		return nil, err
	}
	return &session{Session: s, cache: o.newCache(ctx)}, nil
}

func (o *deviceOptions) newCache(ctx context.Context) cache.Cache {
	cc := o.root.cfg.Cache
	if cc.RedisAddr == "" {
		return cache.NewMemoryCache(time.Minute)
	}
	logger := xglog.WithComponent("cache")
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cc.RedisAddr, Password: cc.RedisPassword, DB: cc.RedisDB}, logger)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "cache.redis_unavailable").Msg("falling back to in-memory cache")
		return cache.NewMemoryCache(time.Minute)
	}
	return rc
}

func (o *deviceOptions) resolveDSN(ctx context.Context, s *session) (string, error) {
	if o.dsn != "" {
		return o.dsn, nil
	}
	dsns, err := s.DSNs(ctx)
	if err != nil {
		return "", err
	}
	switch len(dsns) {
	case 0:
		return "", fmt.Errorf("no devices on the account")
	case 1:
		return dsns[0], nil
	}
	return "", fmt.Errorf("%w: %s", errAmbiguousDevice, strings.Join(dsns, ", "))
}

// connect builds a device over the selected transport. The returned close
// function releases the cache.
func (o *deviceOptions) connect(ctx context.Context) (*device.Device, func(), error) {
	if o.local && o.dsn != "" && o.lanKey != "" && o.deviceIP != "" {
		tr, err := o.localTransport(ctx, o.dsn, o.lanKey, o.deviceIP)
		if err != nil {
			return nil, nil, err
		}
		d, err := o.bind(ctx, tr, device.Info{DSN: o.dsn, IP: o.deviceIP, Model: o.model})
		return d, func() {}, err
	}

	s, err := o.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = s.cache.Close() }
	fail := func(err error) (*device.Device, func(), error) {
		closeFn()
		return nil, nil, err
	}

	dsn, err := o.resolveDSN(ctx, s)
	if err != nil {
		return fail(err)
	}
	cloud, err := transport.NewCloud(ctx, s.Client(), dsn, transport.WithCache(s.cache, o.root.cfg.Cache.TTL))
	if err != nil {
		return fail(err)
	}
	ci := cloud.Info()
	online := ci.Online()
	info := device.Info{DSN: dsn, Model: o.model, IP: ci.LANIP, Online: &online}
	if info.Model == "" {
		info.Model = ci.OEMModel
	}

	var tr transport.Transport = cloud
	if o.local {
		key, ip := o.lanKey, o.deviceIP
		if key == "" {
			key = cloud.LANKey()
		}
		if ip == "" {
			ip = ci.LANIP
		}
		local, err := o.localTransport(ctx, dsn, key, ip)
		if err != nil {
			return fail(err)
		}
		tr = local
		info.IP = ip
	}
	d, err := o.bind(ctx, tr, info)
	if err != nil {
		return fail(err)
	}
	return d, closeFn, nil
}

func (o *deviceOptions) localTransport(ctx context.Context, dsn, lanKey, ip string) (*transport.Local, error) {
	if lanKey == "" || ip == "" {
		return nil, fmt.Errorf("local mode needs the LAN key and device IP")
	}
	lc := transport.LocalConfigFrom(o.root.cfg.Local, dsn, lanKey, ip)
	if o.serverURL != "" {
		lc.ServerURL = o.serverURL
	}
	return transport.NewLocal(ctx, lc)
}

// bind attaches the device map. A model guessed from the cloud record that
// has no map is dropped; an explicit --model must resolve.
func (o *deviceOptions) bind(ctx context.Context, tr transport.Transport, info device.Info) (*device.Device, error) {
	registry := devicemap.NewRegistry(o.root.cfg.DeviceMaps.OverlayDir)
	d, err := device.New(ctx, tr, registry, info)
	if err == nil || o.model != "" || !errors.Is(err, devicemap.ErrNotFound) {
		return d, err
	}
	logger := xglog.WithComponent(xglog.ComponentDevice)
	logger.Warn().
		Str(xglog.FieldModel, info.Model).
		Str(xglog.FieldEvent, "devicemap.missing").
		Msg("no device map for model, named commands are unavailable")
	info.Model = ""
	return device.New(ctx, tr, registry, info)
}
