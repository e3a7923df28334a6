// Package xlog is a thin structured-logging layer adapted from
// go-ethereum's log package: a Logger interface over log/slog with
// contextual key-value pairs attached at the call site, and a handler
// chosen once at process start from LOG_LEVEL.
package xlog

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger mirrors the subset of go-ethereum's log.Logger used throughout
// this codebase: leveled methods taking alternating key/value pairs.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	s *slog.Logger
}

// LevelTrace sits below slog.LevelDebug, matching go-ethereum's five-level
// scheme (Trace < Debug < Info < Warn < Error).
const LevelTrace = slog.Level(-8)

// New builds the root logger. level is one of "trace", "debug", "info",
// "warn", "error" (case-insensitive); unrecognized values fall back to
// "info". Output is a terminal-style handler writing to stderr, matching
// go-ethereum's NewTerminalHandler default for non-datadir runs.
func New(level string) Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &logger{s: slog.New(h)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *logger) Trace(msg string, ctx ...any) { l.s.Log(context.Background(), LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.s.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.s.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.s.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.s.Error(msg, ctx...) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{s: l.s.With(ctx...)}
}

// Discard is a Logger that drops everything; useful in tests.
var Discard Logger = &logger{s: slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
