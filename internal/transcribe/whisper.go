package transcribe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
	"github.com/kaedehara/minutes-pipeline/pkg/executor"
)

type implTranscriber struct {
	cfg      config.WhisperConfig
	executor executor.Executor
	logger   logger.Logger

	// The whisper binary owns one exclusive model/GPU instance; calls are
	// serialized even across concurrent pipeline runs.
	mu sync.Mutex
}

// New creates a Transcriber backed by a whisper.cpp binary.
func New(cfg config.WhisperConfig, exec executor.Executor, log logger.Logger) Transcriber {
	return &implTranscriber{
		cfg:      cfg,
		executor: exec,
		logger:   log,
	}
}

// whisperOutput mirrors the JSON file whisper.cpp writes with -oj.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (t *implTranscriber) Transcribe(ctx context.Context, track recording.SpeakerAudio) ([]Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := os.Stat(track.FilePath); err != nil {
		return nil, errs.Transcription("audio file not found: %s", track.FilePath)
	}

	outputPrefix := strings.TrimSuffix(track.FilePath, filepath.Ext(track.FilePath))
	jsonPath := outputPrefix + ".json"

	t.logger.Info(ctx, "Transcribing %s (speaker=%s)", filepath.Base(track.FilePath), track.Speaker.Username)
	t0 := time.Now()

	args := []string{
		"-m", t.cfg.ModelPath,
		"-f", track.FilePath,
		"-oj",
		"-l", t.cfg.Language,
		"-t", strconv.Itoa(t.cfg.Threads),
		"-bs", strconv.Itoa(t.cfg.BeamSize),
		"-of", outputPrefix,
	}

	if _, err := t.executor.Execute(ctx, t.cfg.BinaryPath, args...); err != nil {
		return nil, errs.Transcription("whisper failed for %s", filepath.Base(track.FilePath)).WithCause(err)
	}
	defer os.Remove(jsonPath)

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errs.Transcription("whisper produced no output for %s", filepath.Base(track.FilePath)).WithCause(err)
	}

	segments, err := parseWhisperJSON(data, track.Speaker.Username)
	if err != nil {
		return nil, errs.Transcription("parse whisper output for %s", filepath.Base(track.FilePath)).WithCause(err)
	}

	t.logger.Info(ctx, "Transcribed %s: %d segments in %s",
		filepath.Base(track.FilePath), len(segments), time.Since(t0).Round(time.Second))
	return segments, nil
}

func (t *implTranscriber) TranscribeAll(ctx context.Context, tracks []recording.SpeakerAudio) ([]Segment, error) {
	var all []Segment

	for i, track := range tracks {
		t.logger.Info(ctx, "Transcribing speaker %d/%d: %s", i+1, len(tracks), track.Speaker.Username)

		segments, err := t.Transcribe(ctx, track)
		if err != nil {
			return nil, err
		}
		all = append(all, segments...)
	}

	t.logger.Info(ctx, "Transcription complete: %d total segments from %d speakers", len(all), len(tracks))
	return all, nil
}

// parseWhisperJSON converts whisper.cpp JSON output into segments tagged with
// speaker. Offsets are milliseconds. Empty segments are dropped.
func parseWhisperJSON(data []byte, speaker string) ([]Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	var segments []Segment
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start:   float64(seg.Offsets.From) / 1000.0,
			End:     float64(seg.Offsets.To) / 1000.0,
			Text:    text,
			Speaker: speaker,
		})
	}
	return segments, nil
}
