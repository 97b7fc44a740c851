package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type implLogger struct {
	zl zerolog.Logger
}

// New creates a Logger writing human-readable output to stdout.
func New(level string) Logger {
	return NewWithWriter(level, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})
}

// NewWithWriter creates a Logger writing to w. Unknown levels default to info.
func NewWithWriter(level string, w io.Writer) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return &implLogger{
		zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.zl.Debug().Msg(render(msg, args...))
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.zl.Info().Msg(render(msg, args...))
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.zl.Warn().Msg(render(msg, args...))
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.zl.Error().Msg(render(msg, args...))
}

// render formats the message and masks credentials before it reaches any sink.
func render(msg string, args ...interface{}) string {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return Mask(msg)
}
