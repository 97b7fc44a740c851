package publish

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
)

// Discord caps a single embed field value at 1024 characters.
const maxFieldChars = 1024

var sectionPatterns = map[string]*regexp.Regexp{
	"要約":   regexp.MustCompile(`(?s)##\s*要約\s*\n(.*?)(?:\n##\s|\z)`),
	"決定事項": regexp.MustCompile(`(?s)##\s*決定事項\s*\n(.*?)(?:\n##\s|\z)`),
}

// extractSection pulls a "## heading" section body out of the generated
// markdown. Missing sections return the empty string.
func extractSection(markdown, heading string) string {
	re, ok := sectionPatterns[heading]
	if !ok {
		return ""
	}
	m := re.FindStringSubmatch(markdown)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// truncateRunes cuts s to at most n runes, appending an ellipsis when
// anything was removed.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// buildMinutesEmbed renders the minutes summary embed. The full minutes are
// attached as a file; the embed only carries the headline sections.
func buildMinutesEmbed(m Minutes, cfg config.PosterConfig) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📋 議事録",
		Color: cfg.EmbedColor,
	}
	if m.Date != "" {
		embed.Description = m.Date
	}

	addField := func(name, value string) {
		if value == "" {
			return
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: truncateRunes(value, maxFieldChars),
		})
	}

	addField("参加者", strings.Join(m.Speakers, ", "))
	addField("要約", extractSection(m.Markdown, "要約"))
	addField("決定事項", extractSection(m.Markdown, "決定事項"))

	trimEmbed(embed, cfg.MaxEmbedLength)
	return embed
}

// trimEmbed shrinks field values until the embed's total character count
// fits budget, trimming the last (least important) fields first.
func trimEmbed(embed *discordgo.MessageEmbed, budget int) {
	if budget <= 0 {
		return
	}
	for i := len(embed.Fields) - 1; i >= 0; i-- {
		total := embedLength(embed)
		if total <= budget {
			return
		}
		over := total - budget
		f := embed.Fields[i]
		keep := len([]rune(f.Value)) - over
		if keep < 0 {
			keep = 0
		}
		f.Value = truncateRunes(f.Value, keep)
		if f.Value == "" {
			f.Value = "…"
		}
	}
}

func embedLength(embed *discordgo.MessageEmbed) int {
	n := len([]rune(embed.Title)) + len([]rune(embed.Description))
	for _, f := range embed.Fields {
		n += len([]rune(f.Name)) + len([]rune(f.Value))
	}
	return n
}

// buildErrorEmbed renders the failure notice. The mention (if any) goes in
// the message content since role mentions inside embeds do not ping.
func buildErrorEmbed(stage errs.Stage, message string, cfg config.PosterConfig) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚠️ 議事録の生成に失敗しました",
		Description: truncateRunes(message, maxFieldChars),
		Color:       0xED4245,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "ステージ", Value: stageLabel(stage), Inline: true},
		},
	}
}

func stageLabel(stage errs.Stage) string {
	if stage == "" || stage == errs.StageUnknown {
		return "unknown"
	}
	return string(stage)
}

func mentionContent(roleID string) string {
	if roleID == "" {
		return ""
	}
	return fmt.Sprintf("<@&%s>", roleID)
}
