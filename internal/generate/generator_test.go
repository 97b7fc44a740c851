package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
)

func testGenerator(maxRetries int, invoke func(ctx context.Context, prompt string) (string, error)) *implGenerator {
	return &implGenerator{
		cfg: config.GeneratorConfig{
			Model:      "test-model",
			MaxRetries: maxRetries,
		},
		logger:         logger.Nop(),
		template:       "Date: {date}\nSpeakers: {speakers}\nServer: {guild_name} / {channel_name}\n---\n{transcript}",
		invoke:         invoke,
		initialBackoff: time.Millisecond,
	}
}

func TestRenderPrompt(t *testing.T) {
	g := testGenerator(0, nil)

	got := g.renderPrompt(Input{
		Transcript:  "[00:01] alice: hi",
		Date:        "2026-08-31 10:00",
		Speakers:    "alice, bob",
		GuildName:   "dev {team}",
		ChannelName: "meetings",
	})

	if !strings.Contains(got, "Date: 2026-08-31 10:00") {
		t.Errorf("date not rendered: %s", got)
	}
	if !strings.Contains(got, "Speakers: alice, bob") {
		t.Errorf("speakers not rendered: %s", got)
	}
	// Literal braces in values must survive plain replacement.
	if !strings.Contains(got, "dev {team}") {
		t.Errorf("braces mangled: %s", got)
	}
	if !strings.Contains(got, "[00:01] alice: hi") {
		t.Errorf("transcript not rendered: %s", got)
	}
}

func TestGenerateSuccess(t *testing.T) {
	calls := 0
	g := testGenerator(2, func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "## 要約\nminutes here", nil
	})

	got, err := g.Generate(context.Background(), Input{Transcript: "t"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "## 要約\nminutes here" {
		t.Errorf("Generate() = %q", got)
	}
	if calls != 1 {
		t.Errorf("invoke called %d times, want 1", calls)
	}
}

func TestGenerateRetryBound(t *testing.T) {
	calls := 0
	g := testGenerator(2, func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("503 service unavailable")
	})

	_, err := g.Generate(context.Background(), Input{Transcript: "t"})
	if err == nil {
		t.Fatal("Generate() should fail when every attempt fails")
	}
	if calls != 3 {
		t.Errorf("invoke called %d times, want 3 (1 initial + 2 retries)", calls)
	}
	if errs.StageOf(err) != errs.StageGeneration {
		t.Errorf("StageOf() = %v, want generation", errs.StageOf(err))
	}
}

func TestGenerateTransientThenSuccess(t *testing.T) {
	calls := 0
	g := testGenerator(2, func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded"}
		}
		return "minutes", nil
	})

	got, err := g.Generate(context.Background(), Input{Transcript: "t"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "minutes" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestGenerateNonRetryableShortCircuit(t *testing.T) {
	calls := 0
	g := testGenerator(5, func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad request"}
	})

	_, err := g.Generate(context.Background(), Input{Transcript: "t"})
	if err == nil {
		t.Fatal("Generate() should fail")
	}
	if calls != 1 {
		t.Errorf("invoke called %d times, want 1 (client errors are not retried)", calls)
	}
	if errs.StageOf(err) != errs.StageGeneration {
		t.Errorf("StageOf() = %v, want generation", errs.StageOf(err))
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit 429", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, false},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, false},
		{"unavailable", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, false},
		{"bad request", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, true},
		{"unauthorized", genai.APIError{Code: 401, Status: "UNAUTHENTICATED"}, true},
		{"forbidden", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, true},
		{"not found", genai.APIError{Code: 404, Status: "NOT_FOUND"}, true},
		{"wrapped api error", fmt.Errorf("call failed: %w", genai.APIError{Code: 403}), true},
		{"connection reset", errors.New("connection reset by peer"), false},
		// Digits in free text must not be mistaken for a status code.
		{"timeout mentioning 4000ms", errors.New("net/http: timeout awaiting response headers after 4000ms"), false},
		{"proxy error mentioning 404", errors.New("upstream proxy returned unexpected body: 404 page not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanent(tt.err); got != tt.want {
				t.Errorf("isPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGenerateRetriesTimeoutWithDigitsInText(t *testing.T) {
	calls := 0
	g := testGenerator(2, func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("net/http: timeout awaiting response headers after 4000ms (Client.Timeout exceeded)")
		}
		return "minutes", nil
	})

	got, err := g.Generate(context.Background(), Input{Transcript: "t"})
	if err != nil {
		t.Fatalf("Generate() error = %v, timeouts must be retried", err)
	}
	if got != "minutes" || calls != 3 {
		t.Errorf("got %q after %d calls, want minutes after 3", got, calls)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := testGenerator(2, func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("503 unavailable")
	})

	if _, err := g.Generate(ctx, Input{Transcript: "t"}); err == nil {
		t.Error("Generate() should fail once the context is cancelled")
	}
}
