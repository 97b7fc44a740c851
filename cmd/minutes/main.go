package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaedehara/minutes-pipeline/internal/bot"
	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/craig"
	"github.com/kaedehara/minutes-pipeline/internal/drive"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/generate"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/pipeline"
	"github.com/kaedehara/minutes-pipeline/internal/publish"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
	"github.com/kaedehara/minutes-pipeline/internal/transcribe"
	"github.com/kaedehara/minutes-pipeline/internal/watchdir"
	"github.com/kaedehara/minutes-pipeline/pkg/executor"
)

func main() {
	ctx := context.Background()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info(ctx, "========================================")
	log.Info(ctx, "Meeting Minutes Pipeline")
	log.Info(ctx, "========================================")
	log.Info(ctx, "Whisper: %s (%d threads, beam %d)", cfg.Whisper.ModelPath, cfg.Whisper.Threads, cfg.Whisper.BeamSize)
	log.Info(ctx, "Model: %s", cfg.Generator.Model)

	// Initialize dependencies
	exec := executor.New()
	transcriber := transcribe.New(cfg.Whisper, exec, log)

	generator, err := generate.New(ctx, cfg.Generator, log)
	if err != nil {
		log.Error(ctx, "Failed to initialise generator: %v", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.Discord, cfg.Craig, nil, cfg.GoogleDrive.Enabled, log)
	if err != nil {
		log.Error(ctx, "Failed to create bot: %v", err)
		os.Exit(1)
	}

	publisher := publish.New(b.Session(), cfg.Discord, cfg.Poster, log)
	source := craig.New(cfg.Craig, log)
	pl := pipeline.New(cfg.Pipeline, cfg.Merger, source, transcriber, generator, publisher, log)
	b.SetPipeline(pl)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		log.Error(ctx, "Failed to connect to Discord: %v", err)
		os.Exit(1)
	}
	defer b.Stop()

	if cfg.GoogleDrive.Enabled {
		dw, err := drive.New(ctx, cfg.GoogleDrive, pl, log)
		if err != nil {
			log.Error(ctx, "Failed to start Drive watcher: %v", err)
			os.Exit(1)
		}
		go dw.Start(ctx)
	}

	if cfg.ArchiveWatch.Enabled {
		if err := os.MkdirAll(cfg.ArchiveWatch.Dir, 0755); err != nil {
			log.Error(ctx, "Failed to create watch directory: %v", err)
			os.Exit(1)
		}
		aw, err := watchdir.New(cfg.ArchiveWatch, archiveHandler(pl, log), log)
		if err != nil {
			log.Error(ctx, "Failed to create archive watcher: %v", err)
			os.Exit(1)
		}
		defer aw.Stop()
		go func() {
			if err := aw.Start(ctx); err != nil && err != context.Canceled {
				log.Error(ctx, "Archive watcher error: %v", err)
			}
		}()
	}

	log.Info(ctx, "========================================")
	log.Info(ctx, "Minutes pipeline is ready!")
	log.Info(ctx, "Watching channel: %s", cfg.Discord.WatchChannelID)
	log.Info(ctx, "Press Ctrl+C to stop")
	log.Info(ctx, "========================================")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info(ctx, "Shutting down gracefully...")
	cancel()
	log.Info(ctx, "Minutes pipeline stopped")
}

// archiveHandler feeds a local archive file through the pipeline. Failures
// before the pipeline takes over are tagged with the archive-watch stage.
func archiveHandler(pl pipeline.Pipeline, log logger.Logger) watchdir.ArchiveHandler {
	return func(ctx context.Context, filePath string) error {
		zipBytes, err := os.ReadFile(filePath)
		if err != nil {
			return errs.ArchiveWatch("read %s", filePath).WithCause(err)
		}

		tmpDir, err := os.MkdirTemp("", "archive-")
		if err != nil {
			return errs.ArchiveWatch("create working directory").WithCause(err)
		}
		defer os.RemoveAll(tmpDir)

		tracks, err := recording.ExtractArchive(ctx, zipBytes, tmpDir, log)
		if err != nil {
			return errs.ArchiveWatch("extract %s", filePath).WithCause(err)
		}
		if len(tracks) == 0 {
			return errs.ArchiveWatch("no audio tracks in %s", filePath)
		}

		return pl.RunTracks(ctx, tracks, pipeline.Meta{
			ChannelName: filePath,
			Source:      "watchdir",
		})
	}
}
