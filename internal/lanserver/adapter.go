// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ManuGH/cremalink/internal/config"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/metrics"
	"github.com/ManuGH/cremalink/internal/netutil"
	"github.com/ManuGH/cremalink/internal/platform/httpx"
)

var (
	// ErrRegisterFailed is returned when the machine rejects or misses local_reg.
	ErrRegisterFailed = errors.New("local_reg failed")
	// ErrNoDeviceIP is returned when registration is attempted without a device.
	ErrNoDeviceIP = errors.New("device IP not configured")
)

type localReg struct {
	LocalReg localRegBody `json:"local_reg"`
}

type localRegBody struct {
	IP     string `json:"ip"`
	Notify int    `json:"notify"`
	Port   int    `json:"port"`
	URI    string `json:"uri"`
}

// Adapter tells the machine where the LAN server listens.
type Adapter struct {
	cfg        config.ServerConfig
	client     *http.Client
	candidates func() ([]net.IP, error)
}

// NewAdapter builds the machine-facing client using the configured TLS policy.
func NewAdapter(cfg config.ServerConfig) (*Adapter, error) {
	tlsCfg, err := httpx.DeviceTLSConfig(cfg.DeviceRegisterVerify, cfg.DeviceRegisterCAPath)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:        cfg,
		client:     httpx.NewClient(cfg.DeviceRegisterTimeout, httpx.WithTLSConfig(tlsCfg), httpx.WithTracing()),
		candidates: netutil.NetworkIPs,
	}, nil
}

// Register sends PUT {scheme}://{ip}/local_reg.json and records the outcome
// on st.
func (a *Adapter) Register(ctx context.Context, st *State) error {
	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentLANServer)
	if !a.cfg.EnableDeviceRegister {
		logger.Info().Str(xglog.FieldEvent, "register_skipped").
			Interface(xglog.FieldDetails, map[string]any{"reason": "disabled"}).Msg("device registration disabled")
		return nil
	}
	dev, _ := st.Device()
	if dev.DeviceIP == "" {
		return ErrNoDeviceIP
	}

	announce, err := netutil.AnnounceIP(a.cfg.IP, a.candidates)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
	}
	body, err := json.Marshal(localReg{LocalReg: localRegBody{
		IP:     announce,
		Notify: 1,
		Port:   a.cfg.Port,
		URI:    "/local_lan",
	}})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s://%s/local_reg.json", dev.Scheme, dev.DeviceIP)
	err = a.put(ctx, url, body)
	metrics.RecordRegistration(err)
	if err != nil {
		st.SetRegistered(false)
		logger.Warn().Err(err).Str(xglog.FieldEvent, "local_reg_failed").
			Str(xglog.FieldDeviceIP, dev.DeviceIP).Msg("device registration failed")
		return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
	}
	st.SetRegistered(true)
	logger.Info().Str(xglog.FieldEvent, "local_reg_ok").
		Str(xglog.FieldDeviceIP, dev.DeviceIP).Str(xglog.FieldScheme, dev.Scheme).Msg("registered with device")
	return nil
}

func (a *Adapter) put(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device replied %d", resp.StatusCode)
	}
	return nil
}
