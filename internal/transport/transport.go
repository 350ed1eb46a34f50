// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transport moves commands and readings between cremalink and a
// machine, either through the Ayla cloud or through the local LAN server.
package transport

import (
	"context"
	"errors"

	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/properties"
)

// Kinds of transport.
const (
	KindCloud = "cloud"
	KindLocal = "local"
)

var (
	// ErrPropertyNotFound is returned when a named property does not exist.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrServerUnreachable is returned when the LAN server cannot be reached.
	ErrServerUnreachable = errors.New("local server unreachable")
	// ErrServerResponse is returned for non-success LAN server replies.
	ErrServerResponse = errors.New("local server error")
)

// Transport is implemented by Cloud and Local.
type Transport interface {
	Kind() string
	DeviceID() string
	Configure(ctx context.Context) error
	SendCommand(ctx context.Context, frameHex string) (map[string]any, error)
	Properties(ctx context.Context) (*properties.Snapshot, error)
	Property(ctx context.Context, name string) (any, error)
	Monitor(ctx context.Context) (monitor.Snapshot, error)
	RefreshMonitor(ctx context.Context) error
	Health(ctx context.Context) (Health, error)
	SetMappings(ctx context.Context, commands map[string]string, props map[string]string) error
}

// Health is a transport's view of the machine.
type Health struct {
	Online bool   `json:"online"`
	Status string `json:"status,omitempty"`
}

// mappings holds the device map parts a transport needs.
type mappings struct {
	commands map[string]string
	props    map[string]string
}

func (m mappings) monitorProperty() string {
	if p := m.props["monitor"]; p != "" {
		return p
	}
	return devicemap.DefaultMonitorProperty
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
