package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches an on-disk parameter directory and rebuilds catalogs when
// parameter files change. Bursts of events are debounced into one rebuild.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	config   WatcherConfig
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the parameter directory to watch.
	Dir string

	// DebounceInterval is the quiet period before a rebuild (default: 250ms).
	DebounceInterval time.Duration

	// Extensions lists the file extensions that trigger a rebuild.
	Extensions []string
}

// NewWatcher creates a watcher for config.Dir.
func NewWatcher(config WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 250 * time.Millisecond
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".yaml", ".yml"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		logger:   logger.With("component", "catalog_watcher"),
		config:   config,
		debounce: NewDebouncer(config.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onChange
// after each debounced burst of parameter file changes.
func (w *Watcher) Watch(ctx context.Context, onChange func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.addDirectory(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.config.Dir, err)
	}
	w.logger.Info("watching parameter directory", "dir", w.config.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("parameter file changed", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(func() {
				if err := onChange(); err != nil {
					w.logger.Error("catalog rebuild failed", "error", err)
					return
				}
				w.logger.Info("catalog rebuilt after parameter change", "path", event.Name)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Stop stops a running watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()
	return w.watcher.Close()
}

func (w *Watcher) addDirectory(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range w.config.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Debouncer collapses rapid triggers into a single callback fired after a
// quiet period.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any callback still pending.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
