// Package errs defines the stage-tagged error taxonomy shared by every
// pipeline stage. Each failure carries the stage it originated from as
// structured data so callers never have to parse message text.
package errs

import (
	"errors"
	"fmt"
)

// Stage identifies which pipeline stage an error originated from.
type Stage string

const (
	StageDetection     Stage = "detection"
	StageAcquisition   Stage = "audio_acquisition"
	StageTranscription Stage = "transcription"
	StageGeneration    Stage = "generation"
	StagePublishing    Stage = "publishing"
	StageDriveWatch    Stage = "drive_watch"
	StageArchiveWatch  Stage = "archive_watch"
	StageConfig        Stage = "config"
	StageUnknown       Stage = "unknown"
)

// Error is the unified pipeline error type.
type Error struct {
	Stage   Stage
	Message string
	// Timeout marks acquisition timeouts (cook-job poll or download
	// deadline exceeded) so callers can distinguish them from other
	// acquisition failures.
	Timeout bool
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithCause attaches the underlying error and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func newError(stage Stage, format string, args ...any) *Error {
	return &Error{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Detection(format string, args ...any) *Error {
	return newError(StageDetection, format, args...)
}

func Acquisition(format string, args ...any) *Error {
	return newError(StageAcquisition, format, args...)
}

// AcquisitionTimeout builds an acquisition error with the timeout flag set.
func AcquisitionTimeout(format string, args ...any) *Error {
	e := newError(StageAcquisition, format, args...)
	e.Timeout = true
	return e
}

func Transcription(format string, args ...any) *Error {
	return newError(StageTranscription, format, args...)
}

func Generation(format string, args ...any) *Error {
	return newError(StageGeneration, format, args...)
}

func Publishing(format string, args ...any) *Error {
	return newError(StagePublishing, format, args...)
}

func DriveWatch(format string, args ...any) *Error {
	return newError(StageDriveWatch, format, args...)
}

func ArchiveWatch(format string, args ...any) *Error {
	return newError(StageArchiveWatch, format, args...)
}

func Config(format string, args ...any) *Error {
	return newError(StageConfig, format, args...)
}

// StageOf returns the stage tag of err, or StageUnknown when err is not a
// pipeline error.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return StageUnknown
}

// IsTimeout reports whether err is an acquisition timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Timeout
}
