// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"fmt"

	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement monitor points are written to.
const Measurement = "ecam_monitor"

// InfluxConfig locates the bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxWriter writes one point per monitor frame.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter connects lazily; the first write surfaces connection errors.
func NewInfluxWriter(cfg InfluxConfig) *InfluxWriter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{client: client, write: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}
}

// Point renders an entry as an InfluxDB point.
func Point(e Entry) *write.Point {
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{"device_id": e.DeviceID, "source": e.Source},
		map[string]any{
			"status":    e.Status,
			"action":    e.Action,
			"progress":  e.Progress,
			"accessory": e.Accessory,
		},
		e.ReceivedAt,
	)
}

func (w *InfluxWriter) Record(ctx context.Context, snap monitor.Snapshot) error {
	e, err := EntryFromSnapshot(snap)
	if err != nil {
		return err
	}
	if err := w.write.WritePoint(ctx, Point(e)); err != nil {
		return fmt.Errorf("error writing to InfluxDB: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}
