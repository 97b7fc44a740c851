package watchdir

import (
	"github.com/fsnotify/fsnotify"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

// New creates a watcher over cfg.Dir with concurrency control. The handler
// receives the path of each archive that matches cfg.FilePattern.
func New(cfg config.ArchiveWatchConfig, handler ArchiveHandler, log logger.Logger) (Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Config("create directory watcher").WithCause(err)
	}

	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, errs.Config("watch directory %s", cfg.Dir).WithCause(err)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &implWatcher{
		cfg:       cfg,
		handler:   handler,
		logger:    log,
		watcher:   fsw,
		semaphore: make(chan struct{}, maxConcurrent),
	}, nil
}
