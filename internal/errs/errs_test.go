package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestStageOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Stage
	}{
		{"detection", Detection("no url"), StageDetection},
		{"acquisition", Acquisition("no tracks"), StageAcquisition},
		{"transcription", Transcription("model failed"), StageTranscription},
		{"generation", Generation("api failed"), StageGeneration},
		{"publishing", Publishing("send failed"), StagePublishing},
		{"drive watch", DriveWatch("list failed"), StageDriveWatch},
		{"archive watch", ArchiveWatch("event lost"), StageArchiveWatch},
		{"config", Config("bad value"), StageConfig},
		{"plain error", errors.New("boom"), StageUnknown},
		{"wrapped", fmt.Errorf("outer: %w", Generation("inner")), StageGeneration},
		{"nil cause chain", Acquisition("x").WithCause(errors.New("io")), StageAcquisition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StageOf(tt.err); got != tt.want {
				t.Errorf("StageOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(AcquisitionTimeout("poll deadline")) {
		t.Error("IsTimeout() = false for AcquisitionTimeout")
	}
	if IsTimeout(Acquisition("no tracks")) {
		t.Error("IsTimeout() = true for plain Acquisition")
	}
	if IsTimeout(errors.New("boom")) {
		t.Error("IsTimeout() = true for plain error")
	}
	if !IsTimeout(fmt.Errorf("wrap: %w", AcquisitionTimeout("dl"))) {
		t.Error("IsTimeout() = false for wrapped timeout")
	}
}

func TestErrorString(t *testing.T) {
	cause := errors.New("connection reset")
	err := Acquisition("download failed").WithCause(cause)

	want := "audio_acquisition: download failed: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the cause")
	}
}
