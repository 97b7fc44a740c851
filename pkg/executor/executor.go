package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// stderr from whisper.cpp is mostly progress chatter; on failure only the
// tail is worth keeping.
const stderrTailBytes = 2048

type implExecutor struct{}

func New() Executor {
	return &implExecutor{}
}

// Execute runs an external command and returns its stdout. On failure the
// error carries the tail of stderr.
func (e *implExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if tail := stderrTail(stderr.Bytes()); tail != "" {
			return "", fmt.Errorf("%s failed: %w\nstderr: %s", name, err, tail)
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}

	return stdout.String(), nil
}

func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
