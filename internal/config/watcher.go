package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nexwave/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Snapshot is an immutable view of the configuration at one version.
// Consumers read the snapshot at the top of a cycle and never see a
// half-applied reload.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   *Config
}

// ChangeListener is called with the new snapshot after a successful reload.
type ChangeListener func(Snapshot)

// Watcher loads the config file, watches it for changes, and swaps in a
// fresh snapshot when the file parses and validates. A broken edit keeps
// the previous snapshot live.
type Watcher struct {
	path string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatcher loads the file once and starts watching for FS events.
func NewWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	w := &Watcher{path: path}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

// Snapshot returns the current snapshot. The contained Config must be
// treated as read-only.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe registers a listener and immediately delivers the current
// snapshot to it.
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	snap := w.snapshot
	w.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("config listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (w *Watcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = Snapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg,
	}
	version := w.snapshot.Version
	w.mu.Unlock()
	logger.Infof("config: loaded v%d from %s (%d symbols, timeframe=%s)",
		version, filepath.Base(w.path), len(cfg.Trading.Symbols), cfg.Trading.Timeframe)
	return nil
}

// Apply replaces the live config in place, as from an API update. The
// change is not written back to disk; a later file edit wins.
func (w *Watcher) Apply(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := validate(cfg); err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = Snapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg,
	}
	w.mu.Unlock()
	w.notify()
	return nil
}
