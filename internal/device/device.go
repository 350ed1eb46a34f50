// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device is the user-facing handle on one coffee machine. It pairs a
// transport with the device map for the machine's model.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/cremalink/internal/beverage"
	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/ecam/command"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/ecam/tlv"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/properties"
	"github.com/ManuGH/cremalink/internal/telemetry"
	"github.com/ManuGH/cremalink/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnknownCommand is returned for names missing from the command map.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnknownBeverage is returned when a beverage reference resolves to nothing.
	ErrUnknownBeverage = errors.New("unknown beverage")
)

// Info is what is known about the machine besides its map.
type Info struct {
	DSN    string `json:"dsn"`
	Model  string `json:"model,omitempty"`
	IP     string `json:"ip,omitempty"`
	Scheme string `json:"scheme,omitempty"`
	Online *bool  `json:"online,omitempty"`
}

// Device sends commands and reads state through a transport.
type Device struct {
	info   Info
	tr     transport.Transport
	dm     *devicemap.Map
	tracer trace.Tracer
}

// MapLoader resolves a model id to its device map.
type MapLoader interface {
	Load(modelID string) (*devicemap.Map, error)
}

// New binds a transport to the map for info.Model and pushes the map's
// command and property names down to the transport.
func New(ctx context.Context, tr transport.Transport, maps MapLoader, info Info) (*Device, error) {
	if info.DSN == "" {
		info.DSN = tr.DeviceID()
	}
	var dm *devicemap.Map
	if info.Model != "" {
		m, err := maps.Load(info.Model)
		if err != nil {
			return nil, fmt.Errorf("load device map for %s: %w", info.Model, err)
		}
		dm = m
	}
	d := FromMap(tr, dm, info)
	if dm != nil {
		if err := tr.SetMappings(ctx, dm.CommandHexes(), dm.PropertyMap); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// FromMap binds a transport to an already loaded map. dm may be nil.
func FromMap(tr transport.Transport, dm *devicemap.Map, info Info) *Device {
	if info.DSN == "" {
		info.DSN = tr.DeviceID()
	}
	return &Device{info: info, tr: tr, dm: dm, tracer: telemetry.Tracer("cremalink/device")}
}

func (d *Device) Info() Info                     { return d.info }
func (d *Device) Transport() transport.Transport { return d.tr }
func (d *Device) Map() *devicemap.Map            { return d.dm }

// Commands lists the command map names, sorted.
func (d *Device) Commands() []string {
	if d.dm == nil {
		return []string{}
	}
	return d.dm.CommandNames()
}

// Do runs a named command from the device map.
func (d *Device) Do(ctx context.Context, name string) (map[string]any, error) {
	key := strings.TrimSpace(name)
	if d.dm == nil {
		return nil, fmt.Errorf("%w: %s (no device map loaded)", ErrUnknownCommand, name)
	}
	cmd, ok := d.dm.CommandMap[key]
	if !ok || cmd.Command == "" {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownCommand, name, strings.Join(d.Commands(), ", "))
	}
	return d.send(ctx, key, "", cmd.Command)
}

// Brew builds and sends a brew frame. ref is a beverage name or id. The
// device map's stored parameters for the beverage are the base; overrides
// are keyed by TLV parameter name and win over stored values.
func (d *Device) Brew(ctx context.Context, ref string, overrides map[string]int) (map[string]any, error) {
	bev, ok := beverage.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBeverage, ref)
	}
	extra, err := tlv.FromNamed(overrides)
	if err != nil {
		return nil, err
	}
	params := d.storedParams(bev).Merge(extra)
	frameHex, err := command.BrewHex(byte(bev.ID), params, command.TriggerStart)
	if err != nil {
		return nil, err
	}
	return d.send(ctx, "brew", bev.Name, frameHex)
}

func (d *Device) storedParams(bev beverage.Info) tlv.Params {
	if d.dm == nil {
		return tlv.Params{}
	}
	cmd, ok := d.dm.CommandMap[bev.Name]
	if !ok {
		return tlv.Params{}
	}
	dec, err := command.ParseHex(cmd.Command)
	if err != nil || int(dec.Beverage) != bev.ID {
		return tlv.Params{}
	}
	return dec.Params
}

// Stop aborts the running beverage.
func (d *Device) Stop(ctx context.Context) (map[string]any, error) {
	return d.send(ctx, "stop", "", command.StopHex(command.DefaultStopBeverage))
}

// SendCommand sends a raw hex frame.
func (d *Device) SendCommand(ctx context.Context, frameHex string) (map[string]any, error) {
	return d.send(ctx, "raw", "", frameHex)
}

func (d *Device) send(ctx context.Context, name, bev, frameHex string) (map[string]any, error) {
	ctx, span := d.tracer.Start(ctx, "device.send_command", trace.WithAttributes(
		append(telemetry.DeviceAttributes(d.info.DSN, d.info.Model, d.tr.Kind()),
			telemetry.CommandAttributes(name, bev)...)...))
	defer span.End()

	out, err := d.tr.SendCommand(ctx, frameHex)
	telemetry.RecordCommand(ctx, name, d.tr.Kind(), err)
	logger := xglog.WithComponentFromContext(ctx, xglog.ComponentDevice)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Warn().Err(err).Str(xglog.FieldEvent, "device.command_failed").
			Str(xglog.FieldDSN, d.info.DSN).Str(xglog.FieldCommand, name).Msg("command failed")
		return nil, err
	}
	logger.Info().Str(xglog.FieldEvent, "device.command_sent").
		Str(xglog.FieldDSN, d.info.DSN).Str(xglog.FieldCommand, name).Msg("command sent")
	return out, nil
}

// Monitor reads the latest monitor frame and binds it to the map's profile.
func (d *Device) Monitor(ctx context.Context) (*monitor.View, error) {
	snap, err := d.tr.Monitor(ctx)
	if err != nil {
		return nil, err
	}
	var profile monitor.Profile
	if d.dm != nil {
		profile = d.dm.Profile()
	}
	return monitor.NewView(snap, profile), nil
}

// RefreshMonitor asks the machine for a fresh monitor frame.
func (d *Device) RefreshMonitor(ctx context.Context) error {
	return d.tr.RefreshMonitor(ctx)
}

// Properties returns the current property snapshot.
func (d *Device) Properties(ctx context.Context) (*properties.Snapshot, error) {
	return d.tr.Properties(ctx)
}

// Property reads one property, resolving property map aliases first.
func (d *Device) Property(ctx context.Context, name string) (any, error) {
	if d.dm != nil {
		if mapped := d.dm.PropertyMap[name]; mapped != "" {
			name = mapped
		}
	}
	return d.tr.Property(ctx, name)
}

// Health reports the transport's view of the machine.
func (d *Device) Health(ctx context.Context) (transport.Health, error) {
	return d.tr.Health(ctx)
}
