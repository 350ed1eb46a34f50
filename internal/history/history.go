// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history records decoded monitor frames so machine state can be
// charted over time.
package history

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	xglog "github.com/ManuGH/cremalink/internal/log"
	"github.com/ManuGH/cremalink/internal/metrics"
)

// ErrNoFrame is returned when a snapshot without a decoded frame is recorded.
var ErrNoFrame = errors.New("history: snapshot has no decoded frame")

// Sink receives monitor snapshots.
type Sink interface {
	Record(ctx context.Context, snap monitor.Snapshot) error
	Close() error
}

// Entry is one stored monitor reading.
type Entry struct {
	DeviceID    string    `json:"device_id"`
	ReceivedAt  time.Time `json:"received_at"`
	Source      string    `json:"source"`
	Status      int       `json:"status"`
	Action      int       `json:"action"`
	Progress    int       `json:"progress"`
	Accessory   int       `json:"accessory"`
	AlarmsHex   string    `json:"alarms"`
	SwitchesHex string    `json:"switches"`
	RawB64      string    `json:"raw_b64"`
}

// EntryFromSnapshot flattens a decoded snapshot.
func EntryFromSnapshot(snap monitor.Snapshot) (Entry, error) {
	f := snap.Frame
	if f == nil {
		return Entry{}, ErrNoFrame
	}
	at := snap.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{
		DeviceID:    snap.DeviceID,
		ReceivedAt:  at.UTC(),
		Source:      snap.Source,
		Status:      int(f.Status),
		Action:      int(f.Action),
		Progress:    int(f.Progress),
		Accessory:   int(f.Accessory),
		AlarmsHex:   hex.EncodeToString(f.Alarms),
		SwitchesHex: hex.EncodeToString(f.Switches),
		RawB64:      snap.RawB64,
	}, nil
}

type nopSink struct{}

func (nopSink) Record(context.Context, monitor.Snapshot) error { return nil }
func (nopSink) Close() error                                   { return nil }

// Nop discards everything.
func Nop() Sink { return nopSink{} }

type namedSink struct {
	name string
	Sink
}

// Fanout writes to every sink. Failures are logged and counted per sink and
// joined into the returned error.
type Fanout struct {
	sinks []namedSink
}

// NewFanout builds a fan-out sink. Nil sinks are skipped.
func NewFanout() *Fanout { return &Fanout{} }

// Add appends a sink under a metrics label.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	if s != nil {
		f.sinks = append(f.sinks, namedSink{name: name, Sink: s})
	}
	return f
}

// Len reports how many sinks are attached.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Record(ctx context.Context, snap monitor.Snapshot) error {
	if snap.Frame == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		err := s.Record(ctx, snap)
		metrics.RecordHistoryWrite(s.name, err)
		if err != nil {
			logger := xglog.WithComponentFromContext(ctx, xglog.ComponentHistory)
			logger.Warn().Err(err).Str("sink", s.name).Str(xglog.FieldEvent, "history.write_failed").Msg("history write failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
