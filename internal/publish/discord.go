package publish

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

// restClient is the slice of the Discord session the publisher needs.
// *discordgo.Session satisfies it.
type restClient interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type implPublisher struct {
	rest      restClient
	discord   config.DiscordConfig
	poster    config.PosterConfig
	logger    logger.Logger
	retryWait time.Duration
}

// New wraps a Discord session as a Publisher targeting the configured
// output channel.
func New(session *discordgo.Session, discord config.DiscordConfig, poster config.PosterConfig, log logger.Logger) Publisher {
	return &implPublisher{
		rest:      session,
		discord:   discord,
		poster:    poster,
		logger:    log,
		retryWait: time.Second,
	}
}

// PostMinutes sends the summary embed with the full minutes and transcript
// attached as files, then archives a docx copy on a best-effort basis.
func (p *implPublisher) PostMinutes(ctx context.Context, m Minutes) error {
	send := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{buildMinutesEmbed(m, p.poster)},
		Files: []*discordgo.File{
			{Name: "minutes.md", ContentType: "text/markdown", Reader: strings.NewReader(m.Markdown)},
		},
	}
	if m.Transcript != "" {
		send.Files = append(send.Files, &discordgo.File{
			Name: "transcript.md", ContentType: "text/markdown", Reader: strings.NewReader(m.Transcript),
		})
	}

	err := p.sendWithRetry(ctx, func() error {
		_, sendErr := p.rest.ChannelMessageSendComplex(p.discord.OutputChannelID, send)
		return sendErr
	})
	if err != nil {
		return errs.Publishing("post minutes to channel %s", p.discord.OutputChannelID).WithCause(err)
	}

	p.logger.Info(ctx, "Minutes posted to channel %s", p.discord.OutputChannelID)
	p.archiveDocx(ctx, m)
	return nil
}

// PostError posts the single failure notice for a run, mentioning the
// configured role when one is set.
func (p *implPublisher) PostError(ctx context.Context, stage errs.Stage, message string) error {
	send := &discordgo.MessageSend{
		Content: mentionContent(p.discord.ErrorMentionRoleID),
		Embeds:  []*discordgo.MessageEmbed{buildErrorEmbed(stage, logger.Mask(message), p.poster)},
	}

	err := p.sendWithRetry(ctx, func() error {
		_, sendErr := p.rest.ChannelMessageSendComplex(p.discord.OutputChannelID, send)
		return sendErr
	})
	if err != nil {
		return errs.Publishing("post error notice").WithCause(err)
	}
	return nil
}

func (p *implPublisher) PostStatus(ctx context.Context, text string) (string, error) {
	msg, err := p.rest.ChannelMessageSend(p.discord.OutputChannelID, text)
	if err != nil {
		return "", errs.Publishing("post status message").WithCause(err)
	}
	return msg.ID, nil
}

func (p *implPublisher) EditStatus(ctx context.Context, messageID, text string) error {
	if _, err := p.rest.ChannelMessageEdit(p.discord.OutputChannelID, messageID, text); err != nil {
		return errs.Publishing("edit status message %s", messageID).WithCause(err)
	}
	return nil
}

func (p *implPublisher) DeleteStatus(ctx context.Context, messageID string) error {
	if err := p.rest.ChannelMessageDelete(p.discord.OutputChannelID, messageID); err != nil {
		return errs.Publishing("delete status message %s", messageID).WithCause(err)
	}
	return nil
}

// sendWithRetry retries rate-limited sends up to three attempts total.
// Every other error is returned as-is.
func (p *implPublisher) sendWithRetry(ctx context.Context, send func() error) error {
	const maxAttempts = 3

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = send()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) || attempt == maxAttempts {
			return err
		}

		p.logger.Warn(ctx, "Rate limited on attempt %d/%d, retrying", attempt, maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryWait):
		}
	}
	return err
}

func isRateLimited(err error) bool {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}
