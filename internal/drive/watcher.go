// Package drive polls a Google Drive folder for recording archives uploaded
// out of band and feeds them into the pipeline. A JSON ledger keeps track of
// processed files across restarts.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/pipeline"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

// driveAPI is the slice of the Drive v3 client the watcher uses. Faked in
// tests.
type driveAPI interface {
	listArchives(ctx context.Context) ([]*gdrive.File, error)
	download(ctx context.Context, fileID string) ([]byte, error)
}

type Watcher struct {
	cfg      config.GoogleDriveConfig
	api      driveAPI
	ledger   *ledger
	pipeline pipeline.Pipeline
	logger   logger.Logger
}

// New builds a watcher backed by a real Drive service authenticated with the
// configured service-account credentials.
func New(ctx context.Context, cfg config.GoogleDriveConfig, pl pipeline.Pipeline, log logger.Logger) (*Watcher, error) {
	svc, err := gdrive.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsPath),
		option.WithScopes(gdrive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, errs.DriveWatch("create drive client").WithCause(err)
	}
	return newWithAPI(cfg, &realAPI{svc: svc, folderID: cfg.FolderID, pattern: cfg.FilePattern}, pl, log)
}

func newWithAPI(cfg config.GoogleDriveConfig, api driveAPI, pl pipeline.Pipeline, log logger.Logger) (*Watcher, error) {
	led, err := openLedger(cfg.ProcessedDBPath)
	if err != nil {
		return nil, err
	}
	return &Watcher{cfg: cfg, api: api, ledger: led, pipeline: pl, logger: log}, nil
}

// Start polls until the context is cancelled. One initial poll runs
// immediately so a backlog is picked up without waiting a full interval.
func (w *Watcher) Start(ctx context.Context) {
	interval := time.Duration(w.cfg.PollIntervalSec) * time.Second
	w.logger.Info(ctx, "Drive watcher started (folder=%s, interval=%s)", w.cfg.FolderID, interval)

	w.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Drive watcher stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	files, err := w.api.listArchives(ctx)
	if err != nil {
		w.logger.Warn(ctx, "Drive listing failed: %v", err)
		return
	}

	for _, f := range files {
		if w.ledger.seen(f.Id) {
			continue
		}
		if !w.matchesPattern(f.Name) {
			w.logger.Debug(ctx, "Skipping %s: does not match pattern %s", f.Name, w.cfg.FilePattern)
			continue
		}
		w.handleFile(ctx, f)
	}
}

// handleFile downloads and processes one archive, recording the outcome in
// the ledger before returning. A failed file is never retried automatically.
func (w *Watcher) handleFile(ctx context.Context, f *gdrive.File) {
	w.logger.Info(ctx, "Processing Drive file %s (%s)", f.Name, f.Id)

	err := w.processFile(ctx, f)
	if err != nil {
		w.logger.Error(ctx, "Drive file %s failed: %v", f.Name, err)
		if markErr := w.ledger.markFailed(f.Id, f.Name, err); markErr != nil {
			w.logger.Error(ctx, "Ledger update failed for %s: %v", f.Id, markErr)
		}
		return
	}

	if markErr := w.ledger.markDone(f.Id, f.Name); markErr != nil {
		w.logger.Error(ctx, "Ledger update failed for %s: %v", f.Id, markErr)
	}
}

func (w *Watcher) processFile(ctx context.Context, f *gdrive.File) error {
	zipBytes, err := w.api.download(ctx, f.Id)
	if err != nil {
		return errs.DriveWatch("download %s", f.Name).WithCause(err)
	}

	tmpDir, err := os.MkdirTemp("", "drive-archive-")
	if err != nil {
		return errs.DriveWatch("create working directory").WithCause(err)
	}
	defer os.RemoveAll(tmpDir)

	tracks, err := recording.ExtractArchive(ctx, zipBytes, tmpDir, w.logger)
	if err != nil {
		return errs.DriveWatch("extract %s", f.Name).WithCause(err)
	}
	if len(tracks) == 0 {
		return errs.DriveWatch("no audio tracks in %s", f.Name)
	}

	return w.pipeline.RunTracks(ctx, tracks, pipeline.Meta{
		ChannelName: f.Name,
		Source:      "drive",
	})
}

func (w *Watcher) matchesPattern(name string) bool {
	if w.cfg.FilePattern == "" {
		return true
	}
	ok, err := path.Match(w.cfg.FilePattern, name)
	return err == nil && ok
}

type realAPI struct {
	svc      *gdrive.Service
	folderID string
	pattern  string
}

func (a *realAPI) listArchives(ctx context.Context) ([]*gdrive.File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false and mimeType='application/zip'",
		strings.ReplaceAll(a.folderID, "'", ""))
	// Narrow server-side with the pattern's longest literal run; the exact
	// glob match still happens locally.
	if lit := longestLiteral(a.pattern); lit != "" {
		q += fmt.Sprintf(" and name contains '%s'", strings.ReplaceAll(lit, "'", ""))
	}

	resp, err := a.svc.Files.List().
		Context(ctx).
		Q(q).
		Fields("files(id, name, size, modifiedTime)").
		OrderBy("modifiedTime").
		PageSize(100).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// longestLiteral returns the longest run of the glob pattern free of
// wildcard characters.
func longestLiteral(pattern string) string {
	var best, cur strings.Builder
	flush := func() {
		if cur.Len() > best.Len() {
			best.Reset()
			best.WriteString(cur.String())
		}
		cur.Reset()
	}
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', ']', '\\':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return best.String()
}

func (a *realAPI) download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := a.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
