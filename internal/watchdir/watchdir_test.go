package watchdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"craig-*.zip", "/watch/craig-meeting.zip", true},
		{"craig-*.zip", "/watch/other.zip", false},
		{"*.zip", "/watch/anything.zip", true},
		{"", "/watch/anything.zip", true},
		{"", "/watch/notes.txt", false},
	}

	for _, tt := range tests {
		w := &implWatcher{cfg: config.ArchiveWatchConfig{FilePattern: tt.pattern}}
		if got := w.matches(tt.path); got != tt.want {
			t.Errorf("matches(%q, pattern %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestWatcherDispatchesNewArchive(t *testing.T) {
	old := settleDelay
	settleDelay = 10 * time.Millisecond
	defer func() { settleDelay = old }()

	dir := t.TempDir()
	handled := make(chan string, 1)

	w, err := New(config.ArchiveWatchConfig{
		Dir:           dir,
		FilePattern:   "craig-*.zip",
		MaxConcurrent: 1,
	}, func(ctx context.Context, filePath string) error {
		handled <- filePath
		return nil
	}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Non-matching files first: they must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "craig-meeting.zip")
	if err := os.WriteFile(target, []byte("zipbytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-handled:
		if got != target {
			t.Errorf("handler got %q, want %q", got, target)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was never invoked for the new archive")
	}
}

func TestNewRejectsMissingDir(t *testing.T) {
	_, err := New(config.ArchiveWatchConfig{Dir: "/does/not/exist"}, nil, logger.Nop())
	if err == nil {
		t.Error("New() should fail for a missing directory")
	}
}
