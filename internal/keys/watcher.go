package keys

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher monitors the key directory and swaps the registry's verification
// set when PEM files change. Only meaningful for the filesystem source.
type Watcher struct {
	watcher         *fsnotify.Watcher
	cfg             SourceConfig
	registry        *Registry
	logger          *zap.Logger
	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	stopChan        chan struct{}
	mu              sync.Mutex
	isWatching      bool
}

// NewWatcher creates a watcher over cfg.Dir that reloads into registry.
func NewWatcher(cfg SourceConfig, registry *Registry, logger *zap.Logger) (*Watcher, error) {
	if cfg.Source != "filesystem" {
		return nil, fmt.Errorf("key watcher requires filesystem source, got %q", cfg.Source)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:         fsw,
		cfg:             cfg,
		registry:        registry,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch starts watching the key directory for changes.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.isWatching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		return fmt.Errorf("add key directory to watcher: %w", err)
	}

	w.logger.Info("Starting key directory watcher",
		zap.String("dir", w.cfg.Dir),
		zap.Duration("debounce", w.debounceTimeout),
	)

	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		w.logger.Info("Key directory watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(event.Name)
			if ext == ".pem" || ext == ".key" {
				w.scheduleReload(event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Key watcher error", zap.Error(err))
		}
	}
}

// scheduleReload debounces bursts of file events into a single reload.
func (w *Watcher) scheduleReload(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("Key file change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTimeout, w.reload)
}

func (w *Watcher) reload() {
	material, err := Load(w.cfg)
	if err != nil {
		w.logger.Error("Key reload failed, keeping previous material", zap.Error(err))
		return
	}
	if err := w.registry.Swap(material); err != nil {
		w.logger.Error("Key swap rejected, keeping previous material", zap.Error(err))
		return
	}
	w.logger.Info("Key material reloaded",
		zap.String("active_kid", material.ActiveKid),
		zap.Strings("verification_kids", material.VerificationKids),
	)
}

// Stop terminates the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	return w.watcher.Close()
}
