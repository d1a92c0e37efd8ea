package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/plantmesh/plantmesh/core"
	"github.com/plantmesh/plantmesh/logging"
)

// WatcherOptions holds configuration overrides passed to NewWatcher().
type WatcherOptions struct {
	// Debounce is how long to wait for further file events before reloading.
	Debounce time.Duration
	// Logger receives reload outcomes; defaults to NoOpLogger.
	Logger logging.Logger
}

// Watcher reloads agent definitions whenever the YAML file changes. Reload
// errors are logged, never fatal; the previous agent set stays in effect
// until a valid file appears.
type Watcher struct {
	path     string
	onReload func([]core.AgentSpec)
	debounce time.Duration
	logger   logging.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher watches path and invokes onReload with the freshly loaded agent
// set after each change. The parent directory is watched rather than the
// file itself so editor rename-and-replace saves are seen.
func NewWatcher(path string, onReload func([]core.AgentSpec), optFns ...func(o *WatcherOptions)) (*Watcher, error) {
	opts := WatcherOptions{
		Debounce: 200 * time.Millisecond,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err.Error())
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	agents, err := Load(w.path)
	if err != nil {
		w.logger.Warn("agent config reload failed, keeping previous set", "path", w.path, "error", err.Error())
		return
	}
	w.logger.Info("agent config reloaded", "path", w.path, "agents", len(agents))
	w.onReload(agents)
}
