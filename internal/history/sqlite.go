// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/persistence/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitor_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	received_at_ms INTEGER NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL,
	action INTEGER NOT NULL,
	progress INTEGER NOT NULL,
	accessory INTEGER NOT NULL,
	alarms TEXT NOT NULL,
	switches TEXT NOT NULL,
	raw_b64 TEXT NOT NULL
)`

const schemaIndex = `CREATE INDEX IF NOT EXISTS idx_monitor_history_device ON monitor_history(device_id, received_at_ms)`

// SQLiteStore keeps monitor history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schema, schemaIndex); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, snap monitor.Snapshot) error {
	e, err := EntryFromSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO monitor_history (device_id, received_at_ms, source, status, action, progress, accessory, alarms, switches, raw_b64)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DeviceID, e.ReceivedAt.UnixMilli(), e.Source, e.Status, e.Action, e.Progress, e.Accessory,
		e.AlarmsHex, e.SwitchesHex, e.RawB64)
	if err != nil {
		return fmt.Errorf("history store: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for deviceID, newest first. An empty
// deviceID matches every device.
func (s *SQLiteStore) Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT device_id, received_at_ms, source, status, action, progress, accessory, alarms, switches, raw_b64
	FROM monitor_history WHERE (? = '' OR device_id = ?) ORDER BY received_at_ms DESC, id DESC LIMIT ?`,
		deviceID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.DeviceID, &ms, &e.Source, &e.Status, &e.Action, &e.Progress, &e.Accessory,
			&e.AlarmsHex, &e.SwitchesHex, &e.RawB64); err != nil {
			return nil, fmt.Errorf("history store: scan: %w", err)
		}
		e.ReceivedAt = timeFromMillis(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
