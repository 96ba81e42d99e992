package nlquery

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultWatchDebounce = 500 * time.Millisecond

// FileWatcher reloads a VocabularyStore when its vocabulary file changes.
// The parent directory is watched so editors that replace the file by
// rename are handled too.
type FileWatcher struct {
	store    *VocabularyStore
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher creates a watcher for path. debounce <= 0 uses the default.
func NewFileWatcher(store *VocabularyStore, path string, debounce time.Duration, logger zerolog.Logger) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve vocabulary path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		store:    store,
		path:     abs,
		debounce: debounce,
		logger:   logger.With().Str("component", "vocabulary-watcher").Logger(),
		watcher:  w,
	}, nil
}

// Start processes filesystem events in the background until ctx is done or
// Close is called.
func (fw *FileWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	fw.cancel = cancel

	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		for {
			select {
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != fw.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					fw.logger.Debug().Str("op", event.Op.String()).Msg("vocabulary file changed")
					fw.trigger(ctx)
				}
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn().Err(err).Msg("file watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// trigger schedules a reload, collapsing bursts of events into one.
func (fw *FileWatcher) trigger(ctx context.Context) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := fw.store.Reload(ctx); err != nil {
			fw.logger.Warn().Err(err).Msg("keeping previous vocabulary")
		}
	})
}

// Close stops the watcher and waits for the event loop to exit.
func (fw *FileWatcher) Close() error {
	if fw.cancel != nil {
		fw.cancel()
	}
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	err := fw.watcher.Close()
	fw.wg.Wait()
	return err
}
