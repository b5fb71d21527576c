package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before reloading.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher reloads a file into a value of type T and hands it to every
// registered handler.
//
// The parent directory is watched, so saves that write a temp file and rename
// it over the original are seen. Reloads whose file content is byte-identical
// to the last applied load are skipped.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []reloadHandler[T]
	nextID   int
	applied  uint64 // fingerprint of the last successful load, 0 if none

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type reloadHandler[T any] struct {
	id int
	fn func(T)
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets the debounce duration. Default is DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for load errors. Errors are always logged.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a typed file watcher. Call Start to begin watching.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler and returns a function that removes it.
// Handlers run in registration order on the watcher goroutine.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.handlers = append(w.handlers, reloadHandler[T]{id: id, fn: handler})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, h := range w.handlers {
			if h.id == id {
				w.handlers = append(w.handlers[:i:i], w.handlers[i+1:]...)
				return
			}
		}
	}
}

// Start records the current file content and begins watching for changes.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsw = fsw

	if sum, err := fingerprint(w.path); err == nil {
		w.mu.Lock()
		w.applied = sum
		w.mu.Unlock()
	}

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	<-w.done
	return err
}

// Reload loads the file now and notifies handlers even if it is unchanged.
func (w *Watcher[T]) Reload() error {
	return w.reload(true)
}

func (w *Watcher[T]) run() {
	defer close(w.done)

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Config watcher stopped")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				w.logger.Debug("Config file change detected", "op", event.Op.String())
				debounce.Reset(w.debounce)
			case event.Has(fsnotify.Remove):
				w.logger.Warn("Config file removed, keeping current configuration", "path", w.path)
			}

		case <-debounce.C:
			_ = w.reload(false)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// reload loads the file and hands the same snapshot to every handler. Unless
// forced, content identical to the last applied load is skipped.
func (w *Watcher[T]) reload(force bool) error {
	sum, err := fingerprint(w.path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !force:
		w.logger.Warn("Config file missing, keeping current configuration", "path", w.path)
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return w.fail(err)
	}

	w.mu.Lock()
	unchanged := sum != 0 && sum == w.applied
	w.mu.Unlock()
	if unchanged && !force {
		w.logger.Debug("Config file content unchanged, skipping reload", "path", w.path)
		return nil
	}

	value, err := w.loader(w.path)
	if err != nil {
		return w.fail(err)
	}
	w.logger.Info("Config reloaded", "path", w.path)

	w.mu.Lock()
	w.applied = sum
	handlers := make([]func(T), len(w.handlers))
	for i, h := range w.handlers {
		handlers[i] = h.fn
	}
	w.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
	return nil
}

func (w *Watcher[T]) fail(err error) error {
	w.logger.Warn("Failed to load config", "path", w.path, "error", err)
	if w.onError != nil {
		w.onError(err)
	}
	return err
}

// fingerprint hashes the file content. Empty content hashes to a non-zero value.
func fingerprint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data) | 1, nil
}
