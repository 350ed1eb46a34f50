// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

const (
	maxPartialBytes = 64 << 10
	maxLineBytes    = 16 << 10
	defaultRingSize = 200
	redactedValue   = "***"
)

// redactedKeys never leave the process through the recent-events API.
var redactedKeys = map[string]struct{}{
	"lan_key":        {},
	"app_crypto_key": {},
	"dev_crypto_key": {},
	"app_sign_key":   {},
	"app_iv_seed":    {},
	"dev_iv_seed":    {},
	"enc":            {},
	"sign":           {},
	"access_token":   {},
	"refresh_token":  {},
	"password":       {},
}

// LogEntry is a decoded structured log line kept in the recent-events ring.
type LogEntry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Event   string         `json:"event,omitempty"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"details"`
}

// BufferMetrics counts lines the ring refused.
type BufferMetrics struct {
	DroppedPartialOverflow uint64 `json:"dropped_partial_overflow"`
	DroppedTooLargeLines   uint64 `json:"dropped_too_large_lines"`
	DroppedIrrelevant      uint64 `json:"dropped_irrelevant"`
	DroppedMalformed       uint64 `json:"dropped_malformed"`
}

type ring struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
	metrics BufferMetrics
}

var recent = newRing(defaultRingSize)

func newRing(size int) *ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &ring{entries: make([]LogEntry, size)}
}

func (r *ring) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// SetRingSize resizes the recent-events ring, discarding its contents.
func SetRingSize(size int) {
	if size <= 0 {
		size = defaultRingSize
	}
	recent.mu.Lock()
	defer recent.mu.Unlock()
	recent.entries = make([]LogEntry, size)
	recent.next = 0
	recent.full = false
}

// GetRecentLogs returns the retained events, oldest first.
func GetRecentLogs() []LogEntry {
	return recent.snapshot()
}

// ClearRecentLogs empties the ring and resets its counters.
func ClearRecentLogs() {
	recent.mu.Lock()
	defer recent.mu.Unlock()
	for i := range recent.entries {
		recent.entries[i] = LogEntry{}
	}
	recent.next = 0
	recent.full = false
	recent.metrics = BufferMetrics{}
}

// GetBufferMetrics returns a copy of the ring's drop counters.
func GetBufferMetrics() BufferMetrics {
	recent.mu.Lock()
	defer recent.mu.Unlock()
	return recent.metrics
}

func countDrop(fn func(m *BufferMetrics)) {
	recent.mu.Lock()
	fn(&recent.metrics)
	recent.mu.Unlock()
}

// Redact replaces values of sensitive keys, descending into nested maps.
func Redact(details map[string]any) map[string]any {
	if len(details) == 0 {
		return map[string]any{}
	}
	cleaned := make(map[string]any, len(details))
	for k, v := range details {
		if _, ok := redactedKeys[k]; ok {
			cleaned[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			cleaned[k] = Redact(nested)
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

// structuredBufferWriter tees zerolog JSON lines into the recent-events ring.
// Writes may split lines; partial data is held until a newline arrives.
type structuredBufferWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
}

func (w *structuredBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := p
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			if w.partial.Len()+len(data) > maxPartialBytes {
				w.partial.Reset()
				countDrop(func(m *BufferMetrics) { m.DroppedPartialOverflow++ })
				return len(p), nil
			}
			w.partial.Write(data)
			break
		}
		var line []byte
		if w.partial.Len() > 0 {
			w.partial.Write(data[:idx])
			line = append([]byte(nil), w.partial.Bytes()...)
			w.partial.Reset()
		} else {
			line = data[:idx]
		}
		data = data[idx+1:]
		ingest(line)
	}
	return len(p), nil
}

func ingest(line []byte) {
	if len(line) == 0 {
		return
	}
	if len(line) > maxLineBytes {
		countDrop(func(m *BufferMetrics) { m.DroppedTooLargeLines++ })
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		countDrop(func(m *BufferMetrics) { m.DroppedMalformed++ })
		return
	}
	if !relevant(fields) {
		countDrop(func(m *BufferMetrics) { m.DroppedIrrelevant++ })
		return
	}

	entry := LogEntry{Fields: Redact(fields)}
	entry.Level, _ = fields["level"].(string)
	entry.Event, _ = fields[FieldEvent].(string)
	entry.Message, _ = fields["message"].(string)
	if ts, ok := fields["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	recent.add(entry)
}

func relevant(fields map[string]any) bool {
	switch fields["level"] {
	case "warn", "error", "fatal", "panic":
		return true
	}
	switch fields[FieldComponent] {
	case ComponentAudit, ComponentLANServer:
		return true
	}
	return fields[FieldEvent] == "request.handled"
}
