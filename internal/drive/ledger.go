package drive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kaedehara/minutes-pipeline/internal/errs"
)

const (
	statusDone   = "done"
	statusFailed = "failed"
)

type ledgerEntry struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
	Error       string    `json:"error,omitempty"`
}

// ledger tracks which Drive files have already been handled so a restart
// never reprocesses them. Every mark is persisted synchronously before the
// caller moves on.
type ledger struct {
	path string

	mu      sync.Mutex
	entries map[string]ledgerEntry
}

func openLedger(path string) (*ledger, error) {
	l := &ledger{path: path, entries: make(map[string]ledgerEntry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, errs.DriveWatch("read processed ledger %s", path).WithCause(err)
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, errs.DriveWatch("corrupt processed ledger %s", path).WithCause(err)
	}
	return l, nil
}

// seen reports whether the file ID has a ledger entry, done or failed.
// Failed files are deliberately not retried; clearing the entry by hand is
// the way to reprocess one.
func (l *ledger) seen(fileID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[fileID]
	return ok
}

func (l *ledger) markDone(fileID, name string) error {
	return l.mark(fileID, ledgerEntry{Name: name, Status: statusDone, ProcessedAt: time.Now()})
}

func (l *ledger) markFailed(fileID, name string, cause error) error {
	e := ledgerEntry{Name: name, Status: statusFailed, ProcessedAt: time.Now()}
	if cause != nil {
		e.Error = cause.Error()
	}
	return l.mark(fileID, e)
}

func (l *ledger) mark(fileID string, e ledgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[fileID] = e
	return l.persistLocked()
}

func (l *ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return errs.DriveWatch("encode processed ledger").WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errs.DriveWatch("create ledger directory").WithCause(err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.DriveWatch("write processed ledger").WithCause(err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return errs.DriveWatch("replace processed ledger").WithCause(err)
	}
	return nil
}
