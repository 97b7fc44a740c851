package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/genai"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

type implGenerator struct {
	cfg      config.GeneratorConfig
	logger   logger.Logger
	template string

	// invoke performs one model call. Swapped out in tests.
	invoke func(ctx context.Context, prompt string) (string, error)

	initialBackoff time.Duration
}

// New loads the prompt template, creates the model client once, and returns a
// Generator that is safe for concurrent use.
func New(ctx context.Context, cfg config.GeneratorConfig, log logger.Logger) (Generator, error) {
	template, err := os.ReadFile(cfg.PromptTemplatePath)
	if err != nil {
		return nil, errs.Generation("prompt template not found: %s", cfg.PromptTemplatePath).WithCause(err)
	}

	if cfg.APIKey == "" {
		return nil, errs.Generation("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Generation("create model client").WithCause(err)
	}

	g := &implGenerator{
		cfg:            cfg,
		logger:         log,
		template:       string(template),
		initialBackoff: time.Second,
	}
	g.invoke = func(ctx context.Context, prompt string) (string, error) {
		return callModel(ctx, client, cfg, prompt)
	}

	log.Info(ctx, "Minutes generator initialised (model=%s)", cfg.Model)
	return g, nil
}

// renderPrompt fills in template placeholders with plain string replacement;
// transcript text and guild names may contain literal braces.
func (g *implGenerator) renderPrompt(in Input) string {
	r := strings.NewReplacer(
		"{transcript}", in.Transcript,
		"{date}", in.Date,
		"{speakers}", in.Speakers,
		"{guild_name}", in.GuildName,
		"{channel_name}", in.ChannelName,
	)
	return r.Replace(g.template)
}

// Generate renders the prompt and calls the model, retrying transient
// failures with exponential backoff up to cfg.MaxRetries extra attempts.
// Client errors other than rate limits abort immediately.
func (g *implGenerator) Generate(ctx context.Context, in Input) (string, error) {
	prompt := g.renderPrompt(in)

	attempt := 0
	maxAttempts := g.cfg.MaxRetries + 1

	op := func() (string, error) {
		attempt++
		g.logger.Info(ctx, "Calling model (attempt %d/%d, model=%s)", attempt, maxAttempts, g.cfg.Model)

		t0 := time.Now()
		text, err := g.invoke(ctx, prompt)
		if err != nil {
			if isPermanent(err) {
				return "", backoff.Permanent(err)
			}
			g.logger.Warn(ctx, "Model call failed on attempt %d/%d: %v", attempt, maxAttempts, err)
			return "", err
		}

		g.logger.Info(ctx, "Model responded in %s (%d chars)", time.Since(t0).Round(time.Millisecond), len(text))
		return text, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.initialBackoff

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if err != nil {
		return "", errs.Generation("model call failed after %d attempts", attempt).WithCause(err)
	}
	return text, nil
}

// isPermanent reports whether the model error is a non-retryable client
// error: an API error carrying a 4xx status other than rate limiting.
// Classification is structural; errors without a status code (network
// failures, timeouts) are transient no matter what their text contains.
func isPermanent(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500
}

func callModel(ctx context.Context, client *genai.Client, cfg config.GeneratorConfig, prompt string) (string, error) {
	temp := float32(cfg.Temperature)
	result, err := client.Models.GenerateContent(ctx, cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(cfg.MaxTokens),
	})
	if err != nil {
		return "", err
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("response contained no text parts")
	}
	return text.String(), nil
}
