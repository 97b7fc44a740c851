// Package recording holds the value types that flow through the pipeline:
// detected recordings, speaker identities, and extracted audio tracks.
package recording

// Recording uniquely identifies one acquisition target detected from a
// recording-ended panel update or a manual command.
type Recording struct {
	ID        string
	AccessKey string
	URL       string
	GuildID   string
	ChannelID string
	MessageID string
	Domain    string
}

// SpeakerInfo identifies one speaker within a recording session.
type SpeakerInfo struct {
	Track    int
	Username string
	UserID   string
}

// SpeakerAudio is one extracted per-speaker audio track. The backing file
// lives in the pipeline run's temporary directory and is removed with it.
type SpeakerAudio struct {
	Speaker  SpeakerInfo
	FilePath string
}
