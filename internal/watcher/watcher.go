// Package watcher publishes debounced change notifications for a set of
// files, such as a log being written and the rule source it is classified
// with.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/pubsub"
)

// EventType identifies a watcher event.
type EventType int

const (
	// FileChanged is published after one or more watched files change.
	FileChanged EventType = iota
)

// WatcherEvent reports which watched files changed during a debounce
// window.
type WatcherEvent struct {
	Type  EventType
	Paths []string
}

// Config configures a Watcher.
type Config struct {
	Paths       []string
	DebounceDur time.Duration
}

// DefaultConfig returns a config watching paths with a 100ms debounce.
func DefaultConfig(paths ...string) Config {
	return Config{
		Paths:       paths,
		DebounceDur: 100 * time.Millisecond,
	}
}

// Watcher watches files through their parent directories, so files that are
// replaced or recreated keep being tracked.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	broker  *pubsub.Broker[WatcherEvent]
	targets map[string]struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	targets := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		targets[abs] = struct{}{}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		broker:  pubsub.NewBroker[WatcherEvent](),
		targets: targets,
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Broker returns the broker events are published on.
func (w *Watcher) Broker() *pubsub.Broker[WatcherEvent] {
	return w.broker
}

// Start adds the parent directories of the watched paths and begins
// delivering events.
func (w *Watcher) Start() error {
	dirs := make(map[string]struct{})
	for p := range w.targets {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.loop()
	logging.Debug("file watcher started", "paths", w.cfg.Paths, "debounce", w.cfg.DebounceDur)
	return nil
}

// Stop stops watching and closes every subscription.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.broker.Shutdown()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			path, err := filepath.Abs(evt.Name)
			if err != nil {
				continue
			}
			if _, ok := w.targets[path]; !ok {
				continue
			}
			w.schedule(path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("file watcher error", "error", err)
		}
	}
}

// schedule records a change and (re)arms the debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.DebounceDur, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}
	sort.Strings(paths)
	logging.Debug("watched files changed", "paths", paths)
	w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: FileChanged, Paths: paths})
}
