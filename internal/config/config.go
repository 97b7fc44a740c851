package config

import (
	"strings"

	"github.com/kaedehara/minutes-pipeline/internal/errs"
)

type Config struct {
	Discord      DiscordConfig      `yaml:"discord"`
	Craig        CraigConfig        `yaml:"craig"`
	Whisper      WhisperConfig      `yaml:"whisper"`
	Merger       MergerConfig       `yaml:"merger"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Poster       PosterConfig       `yaml:"poster"`
	Logging      LoggingConfig      `yaml:"logging"`
	GoogleDrive  GoogleDriveConfig  `yaml:"google_drive"`
	ArchiveWatch ArchiveWatchConfig `yaml:"archive_watch"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
}

type DiscordConfig struct {
	Token              string `yaml:"token"`
	GuildID            string `yaml:"guild_id"`
	WatchChannelID     string `yaml:"watch_channel_id"`
	OutputChannelID    string `yaml:"output_channel_id"`
	ErrorMentionRoleID string `yaml:"error_mention_role_id"`
}

type CraigConfig struct {
	BotID              string `yaml:"bot_id"`
	Domain             string `yaml:"domain"`
	CookFormat         string `yaml:"cook_format"`
	CookContainer      string `yaml:"cook_container"`
	DownloadTimeoutSec int    `yaml:"download_timeout_sec"`
	PollTimeoutSec     int    `yaml:"poll_timeout_sec"`
	MaxRetries         int    `yaml:"max_retries"`
}

type WhisperConfig struct {
	ModelPath  string `yaml:"model_path"`
	BinaryPath string `yaml:"binary_path"`
	Language   string `yaml:"language"`
	Threads    int    `yaml:"threads"`
	BeamSize   int    `yaml:"beam_size"`
}

type MergerConfig struct {
	TimestampFormat      string  `yaml:"timestamp_format"`
	MinSegmentChars      int     `yaml:"min_segment_chars"`
	GapMergeThresholdSec float64 `yaml:"gap_merge_threshold_sec"`
}

type GeneratorConfig struct {
	APIKey             string  `yaml:"api_key"`
	Model              string  `yaml:"model"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
	PromptTemplatePath string  `yaml:"prompt_template_path"`
	MaxRetries         int     `yaml:"max_retries"`
}

type PosterConfig struct {
	EmbedColor     int    `yaml:"embed_color"`
	MaxEmbedLength int    `yaml:"max_embed_length"`
	ArchiveDir     string `yaml:"archive_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type GoogleDriveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsPath string `yaml:"credentials_path"`
	FolderID        string `yaml:"folder_id"`
	FilePattern     string `yaml:"file_pattern"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	ProcessedDBPath string `yaml:"processed_db_path"`
}

type ArchiveWatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	FilePattern   string `yaml:"file_pattern"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type PipelineConfig struct {
	ProcessingTimeoutSec int `yaml:"processing_timeout_sec"`
}

// Validate applies defaults and checks every section, collecting all
// violations into a single config error.
func (c *Config) Validate() error {
	c.applyDefaults()

	var problems []string

	if c.Discord.Token == "" {
		problems = append(problems, "discord.token is required (set DISCORD_BOT_TOKEN)")
	}
	if c.Discord.GuildID == "" {
		problems = append(problems, "discord.guild_id is required")
	}
	if c.Discord.WatchChannelID == "" {
		problems = append(problems, "discord.watch_channel_id is required")
	}
	if c.Discord.OutputChannelID == "" {
		problems = append(problems, "discord.output_channel_id is required")
	}

	if c.Whisper.ModelPath == "" {
		problems = append(problems, "whisper.model_path is required")
	}
	if c.Whisper.BinaryPath == "" {
		problems = append(problems, "whisper.binary_path is required")
	}
	if c.Whisper.BeamSize < 1 {
		problems = append(problems, "whisper.beam_size must be >= 1")
	}

	if c.Generator.Temperature < 0.0 || c.Generator.Temperature > 1.0 {
		problems = append(problems, "generator.temperature must be between 0.0 and 1.0")
	}
	if c.Generator.MaxTokens < 1 {
		problems = append(problems, "generator.max_tokens must be >= 1")
	}
	if c.Generator.MaxRetries < 0 {
		problems = append(problems, "generator.max_retries must be >= 0")
	}

	if c.Craig.DownloadTimeoutSec < 1 {
		problems = append(problems, "craig.download_timeout_sec must be >= 1")
	}
	if c.Craig.PollTimeoutSec < 1 {
		problems = append(problems, "craig.poll_timeout_sec must be >= 1")
	}
	if c.Craig.MaxRetries < 0 {
		problems = append(problems, "craig.max_retries must be >= 0")
	}

	if c.Pipeline.ProcessingTimeoutSec < 1 {
		problems = append(problems, "pipeline.processing_timeout_sec must be >= 1")
	}
	if c.Poster.MaxEmbedLength < 1 {
		problems = append(problems, "poster.max_embed_length must be >= 1")
	}

	if c.GoogleDrive.Enabled {
		if c.GoogleDrive.FolderID == "" {
			problems = append(problems, "google_drive.folder_id is required when google_drive.enabled is true")
		}
		if c.GoogleDrive.PollIntervalSec < 5 {
			problems = append(problems, "google_drive.poll_interval_sec must be >= 5")
		}
	}

	if c.ArchiveWatch.Enabled && c.ArchiveWatch.Dir == "" {
		problems = append(problems, "archive_watch.dir is required when archive_watch.enabled is true")
	}

	if len(problems) > 0 {
		return errs.Config("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// applyDefaults fills fields where the zero value can only mean "unset".
// Fields for which zero is a meaningful setting (retry counts, temperature,
// merge thresholds) are seeded in defaultConfig before parsing instead, so
// an explicit zero in the file survives.
func (c *Config) applyDefaults() {
	if c.Craig.BotID == "" {
		c.Craig.BotID = "272937604339466240"
	}
	if c.Craig.Domain == "" {
		c.Craig.Domain = "craig.chat"
	}
	if c.Craig.CookFormat == "" {
		c.Craig.CookFormat = "flac"
	}
	if c.Craig.CookContainer == "" {
		c.Craig.CookContainer = "zip"
	}
	if c.Craig.DownloadTimeoutSec == 0 {
		c.Craig.DownloadTimeoutSec = 300
	}
	if c.Craig.PollTimeoutSec == 0 {
		c.Craig.PollTimeoutSec = 600
	}

	if c.Whisper.Language == "" {
		c.Whisper.Language = "ja"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 8
	}
	if c.Whisper.BeamSize == 0 {
		c.Whisper.BeamSize = 5
	}

	if c.Merger.TimestampFormat == "" {
		c.Merger.TimestampFormat = "[{mm}:{ss}]"
	}

	if c.Generator.Model == "" {
		c.Generator.Model = "gemini-2.5-flash"
	}
	if c.Generator.MaxTokens == 0 {
		c.Generator.MaxTokens = 4096
	}
	if c.Generator.PromptTemplatePath == "" {
		c.Generator.PromptTemplatePath = "prompts/minutes.txt"
	}

	if c.Poster.EmbedColor == 0 {
		c.Poster.EmbedColor = 0x5865F2
	}
	if c.Poster.MaxEmbedLength == 0 {
		c.Poster.MaxEmbedLength = 4000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.GoogleDrive.CredentialsPath == "" {
		c.GoogleDrive.CredentialsPath = "credentials.json"
	}
	if c.GoogleDrive.FilePattern == "" {
		c.GoogleDrive.FilePattern = "craig_*.zip"
	}
	if c.GoogleDrive.PollIntervalSec == 0 {
		c.GoogleDrive.PollIntervalSec = 30
	}
	if c.GoogleDrive.ProcessedDBPath == "" {
		c.GoogleDrive.ProcessedDBPath = "processed_files.json"
	}

	if c.ArchiveWatch.FilePattern == "" {
		c.ArchiveWatch.FilePattern = "*.zip"
	}
	if c.ArchiveWatch.MaxConcurrent == 0 {
		c.ArchiveWatch.MaxConcurrent = 1
	}

	if c.Pipeline.ProcessingTimeoutSec == 0 {
		c.Pipeline.ProcessingTimeoutSec = 3600
	}
}
