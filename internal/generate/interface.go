package generate

import "context"

// Input carries the merged transcript plus the contextual metadata rendered
// into the prompt.
type Input struct {
	Transcript  string
	Date        string
	Speakers    string
	GuildName   string
	ChannelName string
}

// Generator produces meeting minutes (markdown) from a transcript.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}
