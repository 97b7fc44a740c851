package watchdir

import "context"

// Watcher monitors a local directory for recording archives.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// ArchiveHandler processes one archive file dropped into the watched
// directory.
type ArchiveHandler func(ctx context.Context, filePath string) error
