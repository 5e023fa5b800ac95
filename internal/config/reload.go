// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Listener is called after every successful reload with the old and new
// configuration.
type Listener func(old, next AppConfig)

// Holder owns the current configuration and reloads it from the loader.
// Only hot-reloadable fields take effect without a restart; listeners
// decide which.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []Listener

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHolder wraps an already loaded configuration.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers l for future reloads.
func (h *Holder) OnReload(l Listener) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Reload loads and validates a fresh configuration. On failure the current
// one stays in place.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(old, next)
	h.listenersMu.RLock()
	ls := append([]Listener(nil), h.listeners...)
	h.listenersMu.RUnlock()
	for _, l := range ls {
		l(old, next)
	}
	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// ApplyLogLevel is the Listener for log.level.
func ApplyLogLevel(old, next AppConfig) {
	if old.Log.Level == next.Log.Level {
		return
	}
	if err := log.SetLevel(next.Log.Level); err != nil {
		l := log.WithComponent("config")
		l.Warn().Err(err).Str("level", next.Log.Level).Msg("log level not applied")
	}
}

// Watch reloads whenever the config file is written or replaced, until ctx
// ends or Close is called. Without a config file it does nothing.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("no config file to watch")
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.watchMu.Lock()
	h.watcher = w
	h.done = make(chan struct{})
	done := h.done
	h.watchMu.Unlock()

	h.logger.Info().Str("event", "config.watcher_started").Str(log.FieldPath, path).Msg("watching config file")
	go h.watchLoop(ctx, w, filepath.Clean(path), done)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, w *fsnotify.Watcher, path string, done chan struct{}) {
	defer close(done)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	reloads := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reloads <- struct{}{}:
				default:
				}
			})
		case <-reloads:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic reload failed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Close stops the watcher and waits for its loop to end.
func (h *Holder) Close() error {
	h.watchMu.Lock()
	w, done := h.watcher, h.done
	h.watcher = nil
	h.watchMu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func (h *Holder) logChanges(old, next AppConfig) {
	if old.Log.Level != next.Log.Level {
		h.logger.Info().Str("old", old.Log.Level).Str("new", next.Log.Level).Msg("config changed: log.level")
	}
	if old.Server.RateLimit != next.Server.RateLimit {
		h.logger.Info().Int("old", old.Server.RateLimit).Int("new", next.Server.RateLimit).
			Msg("config changed: server.rateLimit (restart required)")
	}
	if len(old.Streams) != len(next.Streams) {
		h.logger.Info().Int("old", len(old.Streams)).Int("new", len(next.Streams)).
			Msg("config changed: streams")
	}
}
