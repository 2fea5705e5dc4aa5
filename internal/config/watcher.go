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

// snapshot identifies one version of the config file on disk.
type snapshot struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// sameStat reports whether info still describes the file s was taken from.
func (s snapshot) sameStat(info os.FileInfo) bool {
	return info.ModTime().Equal(s.mtime) && info.Size() == s.size
}

// Watcher keeps the server's config in sync with its file. The file is
// polled; it is only re-read when its mtime or size moved, and the callback
// only fires when the content hash differs. An invalid file is logged and
// the previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	applyEnv bool

	// reloadMu serialises polled checks with [Watcher.Reload].
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	seen    snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnvOverrides re-applies [ApplyEnv] to every loaded config so that
// reloaded files keep the process's INTERVOX_* overrides.
func WithEnvOverrides() WatcherOption {
	return func(w *Watcher) { w.applyEnv = true }
}

// NewWatcher loads path and starts polling it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, snap

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the file regardless of its mtime, e.g. on SIGHUP. It
// reports whether the content changed. A read or validation error leaves
// the current config in place.
func (w *Watcher) Reload() (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, snap, err := w.read()
	if err != nil {
		return false, fmt.Errorf("config: reload %s: %w", w.path, err)
	}
	return w.swap(cfg, snap), nil
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := w.seen.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	cfg, snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		// Remember the stat so a broken file is reported once, not every tick.
		w.mu.Lock()
		w.seen.mtime, w.seen.size = info.ModTime(), info.Size()
		w.mu.Unlock()
		return
	}
	w.swap(cfg, snap)
}

// swap installs cfg when its content differs from the current one and runs
// the callback outside the lock.
func (w *Watcher) swap(cfg *Config, snap snapshot) bool {
	w.mu.Lock()
	if snap.sum == w.seen.sum {
		w.seen = snap
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current, w.seen = cfg, snap
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// read parses and validates the file, returning it with its snapshot.
func (w *Watcher) read() (*Config, snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, snapshot{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, snapshot{}, err
	}
	if w.applyEnv {
		if err := ApplyEnv(cfg); err != nil {
			return nil, snapshot{}, err
		}
		if err := Validate(cfg); err != nil {
			return nil, snapshot{}, err
		}
	}
	return cfg, snapshot{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
