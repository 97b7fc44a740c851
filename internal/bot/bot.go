// Package bot runs the Discord gateway session: it watches the recording
// channel for Craig's "Recording ended" panel and exposes slash commands for
// manual control.
package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/pipeline"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

type Bot struct {
	session  *discordgo.Session
	discord  config.DiscordConfig
	craig    config.CraigConfig
	pipeline pipeline.Pipeline
	logger   logger.Logger

	driveEnabled bool

	activeRuns atomic.Int32
	mu         sync.Mutex
	lastRun    string
}

// New creates the gateway session. Start must be called to connect.
func New(discord config.DiscordConfig, craig config.CraigConfig, pl pipeline.Pipeline, driveEnabled bool, log logger.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + discord.Token)
	if err != nil {
		return nil, errs.Config("create discord session").WithCause(err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &Bot{
		session:      session,
		discord:      discord,
		craig:        craig,
		pipeline:     pl,
		logger:       log,
		driveEnabled: driveEnabled,
	}, nil
}

// Session exposes the underlying gateway session so the publisher can share
// its REST client.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// SetPipeline wires the pipeline after construction. The publisher needs the
// bot's session, and the pipeline needs the publisher, so the bot is built
// first and the pipeline attached before Start.
func (b *Bot) SetPipeline(pl pipeline.Pipeline) {
	b.pipeline = pl
}

// Start connects to the gateway and registers the slash commands. It returns
// once connected; events are handled on the session's goroutines.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return errs.Config("open discord gateway").WithCause(err)
	}
	b.logger.Info(ctx, "Connected to Discord as %s", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		b.logger.Warn(ctx, "Slash command registration failed: %v", err)
	}
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

// Craig posts its panel once and then edits it in place, so the "Recording
// ended" state arrives as a message update. The create handler covers bots
// that post a fresh message instead.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(m.Message)
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	b.handleMessage(m.Message)
}

func (b *Bot) handleMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}

	rec := recording.ParseEnded(recording.Event{
		Payload:   m,
		AuthorID:  m.Author.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		MessageID: m.ID,
	}, b.discord.WatchChannelID, b.craig.BotID)
	if rec == nil {
		return
	}

	ctx := context.Background()
	b.logger.Info(ctx, "Recording ended detected: id=%s domain=%s", rec.ID, rec.Domain)
	b.launch(ctx, rec, "discord")
}

// launch starts a pipeline run in the background. Detection must never block
// on processing; the outcome is logged and kept for the status command.
func (b *Bot) launch(ctx context.Context, rec *recording.Recording, source string) {
	meta := pipeline.Meta{Source: source}
	meta.GuildName, meta.ChannelName = b.resolveNames(rec.GuildID, rec.ChannelID)

	b.activeRuns.Add(1)
	go func() {
		defer b.activeRuns.Add(-1)

		started := time.Now()
		err := b.pipeline.Run(context.Background(), rec, meta)

		b.mu.Lock()
		if err != nil {
			b.lastRun = "失敗 (" + string(errs.StageOf(err)) + ")"
		} else {
			b.lastRun = "成功 " + started.Format("2006-01-02 15:04")
		}
		b.mu.Unlock()

		if err != nil {
			b.logger.Error(ctx, "Pipeline run for recording %s failed: %v", rec.ID, err)
			return
		}
		b.logger.Info(ctx, "Pipeline run for recording %s finished in %s", rec.ID, time.Since(started).Round(time.Second))
	}()
}

// resolveNames reads the gateway state cache. Best-effort: the prompt works
// without them.
func (b *Bot) resolveNames(guildID, channelID string) (guildName, channelName string) {
	if guildID != "" {
		if g, err := b.session.State.Guild(guildID); err == nil {
			guildName = g.Name
		}
	}
	if channelID != "" {
		if c, err := b.session.State.Channel(channelID); err == nil {
			channelName = c.Name
		}
	}
	return guildName, channelName
}
