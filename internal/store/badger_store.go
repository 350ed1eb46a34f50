// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//   - device:current   current device configuration (JSON)
//   - mon:<dsn>        last monitor payload (JSON, with TTL)
const (
	deviceKey     = "device:current"
	monitorPrefix = "mon:"
)

// MonitorTTL bounds how long a persisted monitor payload is restored.
const MonitorTTL = 24 * time.Hour

// BadgerStore is a DeviceStore on top of Badger.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemoryBadgerStore opens a store that never touches disk.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) SaveDevice(_ context.Context, rec DeviceRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return s.put([]byte(deviceKey), rec, 0)
}

func (s *BadgerStore) LoadDevice(_ context.Context) (DeviceRecord, error) {
	var out DeviceRecord
	err := s.get([]byte(deviceKey), &out)
	return out, err
}

func (s *BadgerStore) DeleteDevice(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(deviceKey))
	})
}

func (s *BadgerStore) SaveMonitor(_ context.Context, rec MonitorRecord) error {
	return s.put([]byte(monitorPrefix+rec.DSN), rec, MonitorTTL)
}

func (s *BadgerStore) LoadMonitor(_ context.Context, dsn string) (MonitorRecord, error) {
	var out MonitorRecord
	err := s.get([]byte(monitorPrefix+dsn), &out)
	return out, err
}

func (s *BadgerStore) put(key []byte, v any, ttl time.Duration) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, buf)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) get(key []byte, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
