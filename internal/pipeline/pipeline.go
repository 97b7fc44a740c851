package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/generate"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/merge"
	"github.com/kaedehara/minutes-pipeline/internal/publish"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
	"github.com/kaedehara/minutes-pipeline/internal/transcribe"
)

type implPipeline struct {
	cfg         config.PipelineConfig
	mergerCfg   config.MergerConfig
	source      AudioSource
	transcriber transcribe.Transcriber
	generator   generate.Generator
	publisher   publish.Publisher
	logger      logger.Logger

	// now is swapped out in tests for a stable meeting date.
	now func() time.Time
}

func New(cfg config.PipelineConfig, mergerCfg config.MergerConfig, source AudioSource,
	transcriber transcribe.Transcriber, generator generate.Generator,
	publisher publish.Publisher, log logger.Logger) Pipeline {
	return &implPipeline{
		cfg:         cfg,
		mergerCfg:   mergerCfg,
		source:      source,
		transcriber: transcriber,
		generator:   generator,
		publisher:   publisher,
		logger:      log,
		now:         time.Now,
	}
}

// Run downloads the recording's audio into a fresh temp directory and
// processes it. The temp directory is removed on every path out, including
// failures and cancellation.
func (p *implPipeline) Run(ctx context.Context, rec *recording.Recording, meta Meta) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	runID := uuid.NewString()
	p.logger.Info(ctx, "Pipeline run %s started for recording %s (source=%s)", runID, rec.ID, meta.Source)

	tmpDir, err := os.MkdirTemp("", "minutes-"+runID)
	if err != nil {
		return p.fail(ctx, "", errs.Acquisition("create working directory").WithCause(err))
	}
	defer os.RemoveAll(tmpDir)

	statusID := p.postStatus(ctx, "🎙️ 録音ファイルを取得しています…")

	tracks, err := p.source.Download(ctx, rec, tmpDir)
	if err != nil {
		return p.fail(ctx, statusID, err)
	}

	return p.process(ctx, tracks, meta, statusID)
}

// RunTracks processes tracks that were already extracted by the caller.
// The caller owns the directory holding the track files.
func (p *implPipeline) RunTracks(ctx context.Context, tracks []recording.SpeakerAudio, meta Meta) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	p.logger.Info(ctx, "Pipeline run started with %d tracks (source=%s)", len(tracks), meta.Source)

	statusID := p.postStatus(ctx, "🎙️ 音声ファイルを処理しています…")
	return p.process(ctx, tracks, meta, statusID)
}

func (p *implPipeline) process(ctx context.Context, tracks []recording.SpeakerAudio, meta Meta, statusID string) error {
	p.editStatus(ctx, statusID, "📝 文字起こしをしています…")

	segments, err := p.transcriber.TranscribeAll(ctx, tracks)
	if err != nil {
		return p.fail(ctx, statusID, err)
	}

	transcript := merge.Merge(segments, p.mergerCfg)
	if transcript == "" {
		return p.fail(ctx, statusID, errs.Transcription("no usable speech in any track"))
	}

	speakers := speakerNames(tracks)
	p.editStatus(ctx, statusID, "🤖 議事録を作成しています…")

	minutes, err := p.generator.Generate(ctx, generate.Input{
		Transcript:  transcript,
		Date:        p.now().Format("2006-01-02 15:04"),
		Speakers:    strings.Join(speakers, ", "),
		GuildName:   meta.GuildName,
		ChannelName: meta.ChannelName,
	})
	if err != nil {
		return p.fail(ctx, statusID, err)
	}

	p.editStatus(ctx, statusID, "📨 議事録を投稿しています…")

	err = p.publisher.PostMinutes(ctx, publish.Minutes{
		Markdown:    minutes,
		Transcript:  transcript,
		Date:        p.now().Format("2006-01-02"),
		Speakers:    speakers,
		GuildName:   meta.GuildName,
		ChannelName: meta.ChannelName,
	})
	if err != nil {
		return p.fail(ctx, statusID, err)
	}

	p.deleteStatus(ctx, statusID)
	p.logger.Info(ctx, "Pipeline run complete (%d speakers, %d chars of minutes)", len(speakers), len(minutes))
	return nil
}

// fail tears down the status message and posts exactly one error notice,
// then returns the stage-tagged error. Notification failures are swallowed:
// the original error is what callers need to see.
func (p *implPipeline) fail(ctx context.Context, statusID string, err error) error {
	stage := errs.StageOf(err)
	p.logger.Error(ctx, "Pipeline failed at stage %s: %v", stage, err)

	// Notification uses a fresh context: the run's context may already be
	// cancelled or past its deadline.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.deleteStatus(notifyCtx, statusID)
	if postErr := p.publisher.PostError(notifyCtx, stage, err.Error()); postErr != nil {
		p.logger.Warn(notifyCtx, "Error notice could not be posted: %v", postErr)
	}
	return err
}

func (p *implPipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.ProcessingTimeoutSec <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(p.cfg.ProcessingTimeoutSec)*time.Second)
}

// postStatus and friends are best-effort: a failed status message never
// fails the run.
func (p *implPipeline) postStatus(ctx context.Context, text string) string {
	id, err := p.publisher.PostStatus(ctx, text)
	if err != nil {
		p.logger.Warn(ctx, "Status message could not be posted: %v", err)
		return ""
	}
	return id
}

func (p *implPipeline) editStatus(ctx context.Context, statusID, text string) {
	if statusID == "" {
		return
	}
	if err := p.publisher.EditStatus(ctx, statusID, text); err != nil {
		p.logger.Warn(ctx, "Status message could not be edited: %v", err)
	}
}

func (p *implPipeline) deleteStatus(ctx context.Context, statusID string) {
	if statusID == "" {
		return
	}
	if err := p.publisher.DeleteStatus(ctx, statusID); err != nil {
		p.logger.Warn(ctx, "Status message could not be deleted: %v", err)
	}
}

// speakerNames returns the distinct usernames in track order.
func speakerNames(tracks []recording.SpeakerAudio) []string {
	seen := make(map[string]bool, len(tracks))
	var names []string
	for _, t := range tracks {
		name := t.Speaker.Username
		if name == "" {
			name = filepath.Base(t.FilePath)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
