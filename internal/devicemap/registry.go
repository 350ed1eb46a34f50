// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package devicemap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	xglog "github.com/ManuGH/cremalink/internal/log"
)

var overlayExts = []string{".json", ".yaml", ".yml", ".toml"}

// Registry loads device maps from the embedded set and an optional overlay
// directory. Overlay maps win. Loaded maps are cached until the overlay
// changes.
type Registry struct {
	overlayDir string
	logger     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Map
}

// NewRegistry creates a registry. overlayDir may be empty.
func NewRegistry(overlayDir string) *Registry {
	return &Registry{
		overlayDir: overlayDir,
		logger:     xglog.WithComponent("devicemap"),
		cache:      make(map[string]*Map),
	}
}

var defaultRegistry = NewRegistry("")

// Load resolves a model through the embedded maps only.
func Load(modelID string) (*Map, error) {
	return defaultRegistry.Load(modelID)
}

// Available lists the embedded maps.
func Available() []string {
	return defaultRegistry.Available()
}

// Load returns the device map for modelID. ".json" suffixes and OEM ids are
// resolved first.
func (r *Registry) Load(modelID string) (*Map, error) {
	id, err := normalizeModelID(modelID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if m, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	m, err := r.load(id)
	if err != nil {
		return nil, err
	}
	m.Model = id

	r.mu.Lock()
	r.cache[id] = m
	r.mu.Unlock()
	return m, nil
}

func (r *Registry) load(id string) (*Map, error) {
	if r.overlayDir != "" {
		for _, ext := range overlayExts {
			p := filepath.Join(r.overlayDir, id+ext)
			// #nosec G304 -- overlay directory is operator configured
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			m, err := decodeFile(ext, data)
			if err != nil {
				return nil, fmt.Errorf("device map %s: %w", p, err)
			}
			m.Source = p
			return m, nil
		}
	}

	name := path.Join("maps", id+".json")
	data, err := embedded.ReadFile(name)
	if err != nil {
		return nil, &NotFoundError{Model: id, Available: r.Available()}
	}
	m, err := decodeFile(".json", data)
	if err != nil {
		return nil, fmt.Errorf("device map %s: %w", name, err)
	}
	m.Source = "embedded:" + name
	return m, nil
}

func decodeFile(ext string, data []byte) (*Map, error) {
	var doc map[string]any
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported device map format %q", ext)
	}
	return decode(doc)
}

// Available lists every map id, embedded and overlay, sorted.
func (r *Registry) Available() []string {
	set := map[string]struct{}{}
	if entries, err := embedded.ReadDir("maps"); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
				set[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = struct{}{}
			}
		}
	}
	if r.overlayDir != "" {
		if entries, err := os.ReadDir(r.overlayDir); err == nil {
			for _, e := range entries {
				ext := strings.ToLower(filepath.Ext(e.Name()))
				if e.IsDir() || !isOverlayExt(ext) {
					continue
				}
				set[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func isOverlayExt(ext string) bool {
	for _, e := range overlayExts {
		if e == ext {
			return true
		}
	}
	return false
}

// Invalidate drops cached maps.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*Map)
	r.mu.Unlock()
}

// Watch invalidates the cache whenever the overlay directory changes. It
// returns once the watcher is running; the watcher stops with ctx.
func (r *Registry) Watch(ctx context.Context) error {
	if r.overlayDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.overlayDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch overlay dir: %w", err)
	}
	r.logger.Info().
		Str("event", "devicemap.watcher_started").
		Str(xglog.FieldPath, r.overlayDir).
		Msg("watching device map overlay")

	go func() {
		defer func() { _ = watcher.Close() }()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isOverlayExt(strings.ToLower(filepath.Ext(ev.Name))) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					r.Invalidate()
					r.logger.Info().
						Str("event", "devicemap.invalidated").
						Str(xglog.FieldPath, ev.Name).
						Str("op", ev.Op.String()).
						Msg("device map overlay changed")
				})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(werr).Str("event", "devicemap.watcher_error").Msg("device map watcher error")
			}
		}
	}()
	return nil
}
