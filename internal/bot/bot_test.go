package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/pipeline"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

type fakePipeline struct {
	runs chan *recording.Recording
	err  error
}

func (f *fakePipeline) Run(ctx context.Context, rec *recording.Recording, meta pipeline.Meta) error {
	f.runs <- rec
	return f.err
}

func (f *fakePipeline) RunTracks(ctx context.Context, tracks []recording.SpeakerAudio, meta pipeline.Meta) error {
	return f.err
}

func testBot(t *testing.T, pl pipeline.Pipeline) *Bot {
	t.Helper()
	b, err := New(
		config.DiscordConfig{
			Token:          "x",
			WatchChannelID: "watch-chan",
		},
		config.CraigConfig{BotID: "272937604339466240"},
		pl, false, logger.Nop(),
	)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func craigEndedMessage() *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg1",
		ChannelID: "watch-chan",
		GuildID:   "guild1",
		Author:    &discordgo.User{ID: "272937604339466240"},
		Content:   "Recording ended! https://craig.chat/rec/abc123?key=key456",
	}
}

func TestHandleMessageLaunchesPipeline(t *testing.T) {
	pl := &fakePipeline{runs: make(chan *recording.Recording, 1)}
	b := testBot(t, pl)

	b.handleMessage(craigEndedMessage())

	select {
	case rec := <-pl.runs:
		if rec.ID != "abc123" || rec.AccessKey != "key456" {
			t.Errorf("recording = %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("pipeline was never launched")
	}
}

func TestHandleMessageIgnoresOtherAuthors(t *testing.T) {
	pl := &fakePipeline{runs: make(chan *recording.Recording, 1)}
	b := testBot(t, pl)

	m := craigEndedMessage()
	m.Author = &discordgo.User{ID: "someone-else"}
	b.handleMessage(m)

	m2 := craigEndedMessage()
	m2.ChannelID = "other-chan"
	b.handleMessage(m2)

	b.handleMessage(&discordgo.Message{ChannelID: "watch-chan"}) // nil author

	select {
	case <-pl.runs:
		t.Fatal("pipeline launched for a non-matching message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLaunchRecordsOutcome(t *testing.T) {
	pl := &fakePipeline{runs: make(chan *recording.Recording, 1), err: errs.Generation("model down")}
	b := testBot(t, pl)

	b.handleMessage(craigEndedMessage())
	<-pl.runs

	// The outcome is written after Run returns.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.statusContent(), "generation") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("statusContent() = %q, want failure stage recorded", b.statusContent())
}

func TestStatusContentDefaults(t *testing.T) {
	b := testBot(t, &fakePipeline{runs: make(chan *recording.Recording, 1)})

	got := b.statusContent()
	if !strings.Contains(got, "実行中: 0") || !strings.Contains(got, "なし") {
		t.Errorf("statusContent() = %q", got)
	}
	if got := b.driveStatusContent(); !strings.Contains(got, "無効") {
		t.Errorf("driveStatusContent() = %q", got)
	}
}

func TestCommandDefinitions(t *testing.T) {
	cmds := commandDefinitions()
	if len(cmds) != 1 || cmds[0].Name != "minutes" {
		t.Fatalf("commands = %+v", cmds)
	}

	subs := map[string]bool{}
	for _, opt := range cmds[0].Options {
		if opt.Type != discordgo.ApplicationCommandOptionSubCommand {
			t.Errorf("option %s is not a subcommand", opt.Name)
		}
		subs[opt.Name] = true
	}
	for _, want := range []string{"status", "process", "drive-status"} {
		if !subs[want] {
			t.Errorf("missing subcommand %s", want)
		}
	}
}

func TestNewRejectsBadSessionOnly(t *testing.T) {
	// discordgo.New only fails on malformed input; an empty token still
	// builds a session, so New should succeed and defer auth errors to Start.
	if _, err := New(config.DiscordConfig{}, config.CraigConfig{}, &fakePipeline{runs: make(chan *recording.Recording, 1)}, false, logger.Nop()); err != nil {
		t.Errorf("New() error = %v", err)
	}
}
