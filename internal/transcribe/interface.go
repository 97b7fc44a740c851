package transcribe

import (
	"context"

	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

// Transcriber converts speaker audio tracks into segments.
type Transcriber interface {
	// Transcribe processes one track and tags every segment with the
	// track's speaker name.
	Transcribe(ctx context.Context, track recording.SpeakerAudio) ([]Segment, error)
	// TranscribeAll processes tracks sequentially and returns the combined
	// unordered segment list. Any per-track failure aborts the whole call.
	TranscribeAll(ctx context.Context, tracks []recording.SpeakerAudio) ([]Segment, error)
}
