package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 2 * time.Second

// Watcher polls a config file and reports edits that change a setting.
//
// An edit is picked up when the file's mtime moves. It is ignored when the
// content hash is unchanged, when the new file fails to load or validate, or
// when [Diff] finds no setting that differs (comments, key order). In every
// other case onChange receives the previous and the new config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// snapshot is one successful read of the watched file.
type snapshot struct {
	cfg   *Config
	hash  [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default 2s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil; it is
// called from the polling goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.last = snap

	go w.run()
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends polling. No callback runs after Stop returns.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if old, cfg, ok := w.poll(); ok && w.onChange != nil {
				w.onChange(old, cfg)
			}
		}
	}
}

// poll returns the configs to report when the file changed a setting.
func (w *Watcher) poll() (old, cfg *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().Equal(w.last.mtime) {
		return nil, nil, false
	}

	snap, err := readSnapshot(w.path)
	if err != nil {
		// Remember the mtime so a broken file is reported once per edit.
		w.last.mtime = info.ModTime()
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return nil, nil, false
	}

	prev := w.last
	w.last = snap
	if snap.hash == prev.hash {
		return nil, nil, false
	}
	if !Diff(prev.cfg, snap.cfg).Changed() {
		slog.Debug("config watcher: file edited without setting changes", "path", w.path)
		return nil, nil, false
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	return prev.cfg, snap.cfg, true
}

func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, hash: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
