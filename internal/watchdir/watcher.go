package watchdir

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

// settleDelay gives the writer time to finish before the archive is opened.
var settleDelay = 2 * time.Second

type implWatcher struct {
	cfg       config.ArchiveWatchConfig
	handler   ArchiveHandler
	logger    logger.Logger
	watcher   *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// Start blocks, dispatching each newly created matching archive to the
// handler, until the context is cancelled. In-flight handlers are waited for
// on shutdown.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Archive watcher started on %s (pattern=%s, max concurrent: %d)",
		w.cfg.Dir, w.cfg.FilePattern, cap(w.semaphore))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Waiting for in-flight archives to finish...")
			w.wg.Wait()
			w.logger.Info(ctx, "Archive watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !w.matches(event.Name) {
				w.logger.Debug(ctx, "Ignoring %s", event.Name)
				continue
			}

			w.logger.Info(ctx, "New archive detected: %s", event.Name)
			time.Sleep(settleDelay)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(filePath string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()

					if err := w.handler(ctx, filePath); err != nil {
						w.logger.Error(ctx, "Failed to process %s: %v", filePath, err)
					}
				}(event.Name)
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *implWatcher) matches(filePath string) bool {
	if w.cfg.FilePattern == "" {
		return filepath.Ext(filePath) == ".zip"
	}
	ok, err := path.Match(w.cfg.FilePattern, filepath.Base(filePath))
	return err == nil && ok
}
