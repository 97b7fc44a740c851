package pipeline

import (
	"context"

	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

// Meta carries display metadata for the meeting being processed. Source
// names where the audio came from ("discord", "drive", a file name) and is
// only used in logs and status messages.
type Meta struct {
	GuildName   string
	ChannelName string
	Source      string
}

// AudioSource acquires per-speaker audio tracks for a recording into a
// destination directory.
type AudioSource interface {
	Download(ctx context.Context, rec *recording.Recording, destDir string) ([]recording.SpeakerAudio, error)
}

// Pipeline runs a recording end to end: acquire, transcribe, merge,
// generate, publish. Run starts from a Craig recording reference;
// RunTracks starts from already-extracted audio tracks.
type Pipeline interface {
	Run(ctx context.Context, rec *recording.Recording, meta Meta) error
	RunTracks(ctx context.Context, tracks []recording.SpeakerAudio, meta Meta) error
}
