package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

func newLogger() *slog.Logger {
	var logLevel slog.Level
	if level, ok := logLevels[os.Getenv("LOG_LEVEL")]; ok {
		logLevel = level
	}
	handler := &loggingHandler{
		level: logLevel,
	}
	return slog.New(handler)
}

type loggingHandler struct {
	level slog.Level
	attrs []slog.Attr
}

var _ slog.Handler = (*loggingHandler)(nil)

func (lh *loggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lh.level
}

func (lh *loggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(lh.attrs)+len(attrs))
	combined = append(combined, lh.attrs...)
	for _, attr := range attrs {
		if !attr.Equal(slog.Attr{}) {
			combined = append(combined, attr)
		}
	}
	return &loggingHandler{
		level: lh.level,
		attrs: combined,
	}
}

func (lh *loggingHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

func (lh *loggingHandler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder

	if !record.Time.IsZero() {
		builder.WriteRune('[')
		builder.WriteString(record.Time.Format(time.RFC3339))
		builder.WriteString("] ")
	}

	switch record.Level {
	case slog.LevelWarn:
		builder.WriteString("\x1b[33m[WARN]\x1b[0m ")
	case slog.LevelError:
		builder.WriteString("\x1b[31m[ERROR]\x1b[0m ")
	default:
	}

	builder.WriteString(record.Message)

	for _, attr := range lh.attrs {
		builder.WriteRune(' ')
		builder.WriteString(attr.Key)
		builder.WriteString("=")
		builder.WriteString(attr.Value.String())
	}

	record.Attrs(func(attr slog.Attr) bool {
		builder.WriteRune(' ')
		builder.WriteString(attr.Key)
		builder.WriteString("=")
		builder.WriteString(attr.Value.String())
		return true
	})

	fmt.Println(builder.String())

	return nil
}
