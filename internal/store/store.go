// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists the LAN server's device configuration so that a
// restart does not need another /configure call.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists.
var ErrNotFound = errors.New("store: not found")

// DeviceRecord is what /configure stores.
type DeviceRecord struct {
	DSN             string    `json:"dsn"`
	DeviceIP        string    `json:"device_ip"`
	LANKey          string    `json:"lan_key"`
	Scheme          string    `json:"device_scheme"`
	MonitorProperty string    `json:"monitor_property_name,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MonitorRecord is the last monitor payload seen from a device.
type MonitorRecord struct {
	DSN        string    `json:"dsn"`
	RawB64     string    `json:"monitor_b64"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeviceStore is implemented by BadgerStore and MemoryStore.
type DeviceStore interface {
	SaveDevice(ctx context.Context, rec DeviceRecord) error
	// LoadDevice returns the most recently saved device.
	LoadDevice(ctx context.Context) (DeviceRecord, error)
	DeleteDevice(ctx context.Context) error
	SaveMonitor(ctx context.Context, rec MonitorRecord) error
	LoadMonitor(ctx context.Context, dsn string) (MonitorRecord, error)
	Close() error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	device   *DeviceRecord
	monitors map[string]MonitorRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{monitors: make(map[string]MonitorRecord)}
}

func (s *MemoryStore) SaveDevice(_ context.Context, rec DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = &rec
	return nil
}

func (s *MemoryStore) LoadDevice(_ context.Context) (DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return DeviceRecord{}, ErrNotFound
	}
	return *s.device, nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = nil
	return nil
}

func (s *MemoryStore) SaveMonitor(_ context.Context, rec MonitorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[rec.DSN] = rec
	return nil
}

func (s *MemoryStore) LoadMonitor(_ context.Context, dsn string) (MonitorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.monitors[dsn]
	if !ok {
		return MonitorRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Close() error { return nil }
