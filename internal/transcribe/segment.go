// Package transcribe converts per-speaker audio tracks into time-stamped
// utterance segments using a whisper.cpp binary.
package transcribe

// Segment is a single recognized utterance attributed to one speaker.
// Times are seconds from the start of the recording.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}
