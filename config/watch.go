package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the Watcher waits after the last event before
// reloading, so editors that write in several steps trigger one reload.
const DefaultDebounce = 100 * time.Millisecond

// changeNotifier fans reload results out to registered callbacks.
type changeNotifier struct {
	callbacks []func(*Settings, error)
	mu        sync.RWMutex
}

func (n *changeNotifier) OnChange(callback func(*Settings, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callbacks = append(n.callbacks, callback)
}

func (n *changeNotifier) notify(settings *Settings, err error) {
	n.mu.RLock()
	callbacks := make([]func(*Settings, error), len(n.callbacks))
	copy(callbacks, n.callbacks)
	n.mu.RUnlock()

	for _, callback := range callbacks {
		if callback != nil {
			callback(settings, err)
		}
	}
}

// Watcher reloads a configuration file when it changes.
//
// The parent directory is watched rather than the file itself, so atomic
// replacement (write to temp file, rename over) is seen as well as in-place
// writes. Each reload calls the OnChange callbacks with either the new
// Settings or the load error; a failed reload never replaces anything.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	notifier changeNotifier

	closeOnce sync.Once
}

// NewWatcher watches path. A zero debounce selects DefaultDebounce.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		watcher:  fw,
	}, nil
}

// OnChange registers a callback run after every reload attempt.
func (w *Watcher) OnChange(callback func(*Settings, error)) {
	w.notifier.OnChange(callback)
}

// Run dispatches file events until ctx is done or Close is called. It
// returns nil in both cases.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.notifier.notify(nil, fmt.Errorf("file watcher error: %w", err))

		case <-timer.C:
			w.reload()

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) reload() {
	settings, err := Load(w.path)
	if err != nil {
		w.notifier.notify(nil, fmt.Errorf("configuration reload failed: %w", err))
		return
	}
	w.notifier.notify(settings, nil)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
