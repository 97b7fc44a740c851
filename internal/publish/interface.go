package publish

import (
	"context"

	"github.com/kaedehara/minutes-pipeline/internal/errs"
)

// Minutes is the finished artifact handed to the publisher: the generated
// minutes plus the merged transcript and meeting metadata.
type Minutes struct {
	Markdown    string
	Transcript  string
	Date        string
	Speakers    []string
	GuildName   string
	ChannelName string
}

// Publisher delivers pipeline output to the configured Discord channel.
// Status messages are identified by the returned message ID so they can be
// edited or removed as the run progresses.
type Publisher interface {
	PostMinutes(ctx context.Context, m Minutes) error
	PostError(ctx context.Context, stage errs.Stage, message string) error

	PostStatus(ctx context.Context, text string) (string, error)
	EditStatus(ctx context.Context, messageID, text string) error
	DeleteStatus(ctx context.Context, messageID string) error
}
