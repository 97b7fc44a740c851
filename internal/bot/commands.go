package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "minutes",
			Description: "議事録パイプラインの操作",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "パイプラインの状態を表示します",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "process",
					Description: "録音 URL を指定して議事録を作成します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "url",
							Description: "Craig の録音 URL",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "drive-status",
					Description: "Google Drive 監視の状態を表示します",
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	for _, cmd := range commandDefinitions() {
		if _, err := b.session.ApplicationCommandCreate(appID, b.discord.GuildID, cmd); err != nil {
			return fmt.Errorf("register /%s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "minutes" || len(data.Options) == 0 {
		return
	}

	ctx := context.Background()
	sub := data.Options[0]

	var content string
	switch sub.Name {
	case "status":
		content = b.statusContent()
	case "process":
		content = b.startManualRun(ctx, i, sub)
	case "drive-status":
		content = b.driveStatusContent()
	default:
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn(ctx, "Interaction response failed: %v", err)
	}
}

func (b *Bot) statusContent() string {
	b.mu.Lock()
	last := b.lastRun
	b.mu.Unlock()
	if last == "" {
		last = "なし"
	}
	return fmt.Sprintf("実行中: %d 件\n直近の結果: %s", b.activeRuns.Load(), last)
}

func (b *Bot) driveStatusContent() string {
	if b.driveEnabled {
		return "Google Drive 監視: 有効"
	}
	return "Google Drive 監視: 無効"
}

// startManualRun kicks off processing for a hand-pasted recording URL.
func (b *Bot) startManualRun(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	var url string
	for _, opt := range sub.Options {
		if opt.Name == "url" {
			url = opt.StringValue()
		}
	}

	rec, err := recording.FromURL(url, i.GuildID, i.ChannelID)
	if err != nil {
		return "録音 URL の形式が正しくありません。"
	}

	b.logger.Info(ctx, "Manual run requested for recording %s", rec.ID)
	b.launch(ctx, rec, "manual")
	return fmt.Sprintf("録音 %s の処理を開始しました。", rec.ID)
}
