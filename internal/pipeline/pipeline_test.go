package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/generate"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/publish"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
	"github.com/kaedehara/minutes-pipeline/internal/transcribe"
)

type fakeSource struct {
	destDir string
	tracks  []recording.SpeakerAudio
	err     error
	block   bool
}

func (f *fakeSource) Download(ctx context.Context, rec *recording.Recording, destDir string) ([]recording.SpeakerAudio, error) {
	f.destDir = destDir
	if f.block {
		<-ctx.Done()
		return nil, errs.Acquisition("cancelled").WithCause(ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	os.WriteFile(filepath.Join(destDir, "1-alice.flac"), []byte("audio"), 0o644)
	return f.tracks, nil
}

type fakeTranscriber struct {
	segments []transcribe.Segment
	err      error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, track recording.SpeakerAudio) ([]transcribe.Segment, error) {
	return nil, nil
}

func (f *fakeTranscriber) TranscribeAll(ctx context.Context, tracks []recording.SpeakerAudio) ([]transcribe.Segment, error) {
	return f.segments, f.err
}

type fakeGenerator struct {
	minutes string
	err     error
	lastIn  generate.Input
}

func (f *fakeGenerator) Generate(ctx context.Context, in generate.Input) (string, error) {
	f.lastIn = in
	return f.minutes, f.err
}

type fakePublisher struct {
	minutes      []publish.Minutes
	minutesErr   error
	errorCalls   int
	errorStages  []errs.Stage
	statusPosts  int
	statusEdits  int
	statusDels   int
	statusErr    error
	postErrorErr error
}

func (f *fakePublisher) PostMinutes(ctx context.Context, m publish.Minutes) error {
	if f.minutesErr != nil {
		return f.minutesErr
	}
	f.minutes = append(f.minutes, m)
	return nil
}

func (f *fakePublisher) PostError(ctx context.Context, stage errs.Stage, message string) error {
	f.errorCalls++
	f.errorStages = append(f.errorStages, stage)
	return f.postErrorErr
}

func (f *fakePublisher) PostStatus(ctx context.Context, text string) (string, error) {
	f.statusPosts++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return "status1", nil
}

func (f *fakePublisher) EditStatus(ctx context.Context, id, text string) error {
	f.statusEdits++
	return f.statusErr
}

func (f *fakePublisher) DeleteStatus(ctx context.Context, id string) error {
	f.statusDels++
	return f.statusErr
}

func testTracks() []recording.SpeakerAudio {
	return []recording.SpeakerAudio{
		{Speaker: recording.SpeakerInfo{Track: 1, Username: "alice"}, FilePath: "/tmp/1-alice.flac"},
		{Speaker: recording.SpeakerInfo{Track: 2, Username: "bob"}, FilePath: "/tmp/2-bob.flac"},
	}
}

func testSegments() []transcribe.Segment {
	return []transcribe.Segment{
		{Start: 0, End: 2, Text: "hello everyone", Speaker: "alice"},
		{Start: 3, End: 5, Text: "hi alice", Speaker: "bob"},
	}
}

type fixture struct {
	source      *fakeSource
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	publisher   *fakePublisher
	pipeline    Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		source:      &fakeSource{tracks: testTracks()},
		transcriber: &fakeTranscriber{segments: testSegments()},
		generator:   &fakeGenerator{minutes: "## 要約\nみんな挨拶した。"},
		publisher:   &fakePublisher{},
	}
	f.pipeline = New(
		config.PipelineConfig{ProcessingTimeoutSec: 60},
		config.MergerConfig{TimestampFormat: "[{mm}:{ss}]", MinSegmentChars: 1, GapMergeThresholdSec: 1.0},
		f.source, f.transcriber, f.generator, f.publisher, logger.Nop(),
	)
	return f
}

func testRec() *recording.Recording {
	return &recording.Recording{ID: "rec1", AccessKey: "k", Domain: "craig.chat"}
}

func TestRunSuccess(t *testing.T) {
	f := newFixture()

	err := f.pipeline.Run(context.Background(), testRec(), Meta{GuildName: "dev", ChannelName: "meetings", Source: "discord"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(f.publisher.minutes) != 1 {
		t.Fatalf("PostMinutes called %d times, want 1", len(f.publisher.minutes))
	}
	m := f.publisher.minutes[0]
	if m.Markdown != "## 要約\nみんな挨拶した。" {
		t.Errorf("minutes = %q", m.Markdown)
	}
	if len(m.Speakers) != 2 || m.Speakers[0] != "alice" || m.Speakers[1] != "bob" {
		t.Errorf("speakers = %v", m.Speakers)
	}
	if f.publisher.errorCalls != 0 {
		t.Errorf("PostError called %d times on success, want 0", f.publisher.errorCalls)
	}
	if f.publisher.statusDels != 1 {
		t.Errorf("status deleted %d times, want 1", f.publisher.statusDels)
	}
}

func TestRunCleansUpTempDirOnSuccess(t *testing.T) {
	f := newFixture()

	if err := f.pipeline.Run(context.Background(), testRec(), Meta{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.source.destDir == "" {
		t.Fatal("source never received a working directory")
	}
	if _, err := os.Stat(f.source.destDir); !os.IsNotExist(err) {
		t.Errorf("working directory %s still exists after success", f.source.destDir)
	}
}

func TestRunCleansUpTempDirOnFailure(t *testing.T) {
	f := newFixture()
	f.generator.err = errs.Generation("model down")
	f.generator.minutes = ""

	if err := f.pipeline.Run(context.Background(), testRec(), Meta{}); err == nil {
		t.Fatal("Run() should fail")
	}
	if _, err := os.Stat(f.source.destDir); !os.IsNotExist(err) {
		t.Errorf("working directory %s still exists after failure", f.source.destDir)
	}
}

func TestRunCleansUpTempDirOnCancel(t *testing.T) {
	f := newFixture()
	f.source.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := f.pipeline.Run(ctx, testRec(), Meta{}); err == nil {
		t.Fatal("Run() should fail on cancellation")
	}
	if _, err := os.Stat(f.source.destDir); !os.IsNotExist(err) {
		t.Errorf("working directory %s still exists after cancellation", f.source.destDir)
	}
}

func TestRunAcquisitionFailure(t *testing.T) {
	f := newFixture()
	f.source.err = errs.AcquisitionTimeout("job polling timed out")

	err := f.pipeline.Run(context.Background(), testRec(), Meta{})
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if errs.StageOf(err) != errs.StageAcquisition {
		t.Errorf("StageOf() = %v, want acquisition", errs.StageOf(err))
	}
	if !errs.IsTimeout(err) {
		t.Error("timeout classification lost through the pipeline")
	}
	if f.publisher.errorCalls != 1 {
		t.Errorf("PostError called %d times, want exactly 1", f.publisher.errorCalls)
	}
	if f.publisher.errorStages[0] != errs.StageAcquisition {
		t.Errorf("error notice stage = %v", f.publisher.errorStages[0])
	}
}

func TestRunEmptyTranscriptIsTranscriptionFailure(t *testing.T) {
	f := newFixture()
	f.transcriber.segments = nil

	err := f.pipeline.Run(context.Background(), testRec(), Meta{})
	if err == nil {
		t.Fatal("Run() should fail when nothing was transcribed")
	}
	if errs.StageOf(err) != errs.StageTranscription {
		t.Errorf("StageOf() = %v, want transcription", errs.StageOf(err))
	}
	if f.publisher.errorCalls != 1 {
		t.Errorf("PostError called %d times, want 1", f.publisher.errorCalls)
	}
}

func TestRunGenerationFailure(t *testing.T) {
	f := newFixture()
	f.generator.err = errs.Generation("model call failed")
	f.generator.minutes = ""

	err := f.pipeline.Run(context.Background(), testRec(), Meta{})
	if errs.StageOf(err) != errs.StageGeneration {
		t.Errorf("StageOf() = %v, want generation", errs.StageOf(err))
	}
	if f.publisher.errorCalls != 1 {
		t.Errorf("PostError called %d times, want 1", f.publisher.errorCalls)
	}
	if f.publisher.statusDels != 1 {
		t.Errorf("status deleted %d times, want 1", f.publisher.statusDels)
	}
}

func TestRunPublishFailure(t *testing.T) {
	f := newFixture()
	f.publisher.minutesErr = errs.Publishing("channel gone")

	err := f.pipeline.Run(context.Background(), testRec(), Meta{})
	if errs.StageOf(err) != errs.StagePublishing {
		t.Errorf("StageOf() = %v, want publishing", errs.StageOf(err))
	}
	if f.publisher.errorCalls != 1 {
		t.Errorf("PostError called %d times, want 1", f.publisher.errorCalls)
	}
}

func TestRunStatusFailuresAreNonFatal(t *testing.T) {
	f := newFixture()
	f.publisher.statusErr = errors.New("cannot post")

	if err := f.pipeline.Run(context.Background(), testRec(), Meta{}); err != nil {
		t.Fatalf("Run() error = %v, status messages must never fail the run", err)
	}
	if len(f.publisher.minutes) != 1 {
		t.Errorf("minutes were not posted")
	}
}

func TestRunErrorNoticeFailureKeepsOriginalError(t *testing.T) {
	f := newFixture()
	f.generator.err = errs.Generation("model down")
	f.generator.minutes = ""
	f.publisher.postErrorErr = errors.New("cannot post notice")

	err := f.pipeline.Run(context.Background(), testRec(), Meta{})
	if errs.StageOf(err) != errs.StageGeneration {
		t.Errorf("StageOf() = %v, want the original generation error", errs.StageOf(err))
	}
}

func TestRunTracks(t *testing.T) {
	f := newFixture()

	err := f.pipeline.RunTracks(context.Background(), testTracks(), Meta{ChannelName: "archive", Source: "drive"})
	if err != nil {
		t.Fatalf("RunTracks() error = %v", err)
	}
	if len(f.publisher.minutes) != 1 {
		t.Fatalf("PostMinutes called %d times, want 1", len(f.publisher.minutes))
	}
	if f.generator.lastIn.ChannelName != "archive" {
		t.Errorf("channel name = %q", f.generator.lastIn.ChannelName)
	}
	if f.generator.lastIn.Speakers != "alice, bob" {
		t.Errorf("speakers = %q", f.generator.lastIn.Speakers)
	}
}

func TestRunGeneratorReceivesMergedTranscript(t *testing.T) {
	f := newFixture()

	if err := f.pipeline.Run(context.Background(), testRec(), Meta{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "[00:00] alice: hello everyone\n[00:03] bob: hi alice"
	if f.generator.lastIn.Transcript != want {
		t.Errorf("transcript = %q, want %q", f.generator.lastIn.Transcript, want)
	}
}
