// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// InitLogger installs the process root logger. With jsonFormat the output is
// machine-readable JSON on stdout, otherwise a human-friendly terminal format
// on stderr, colored when attached to a tty. The level var stays live so the
// admin server can adjust verbosity at runtime.
func InitLogger(level *slog.LevelVar, jsonFormat bool) {
	var handler slog.Handler
	if jsonFormat {
		handler = JSONHandlerWithLevel(os.Stdout, level)
	} else {
		useColor := isatty.IsTerminal(os.Stderr.Fd())
		handler = NewTerminalHandlerWithLevel(os.Stderr, level, useColor)
	}
	SetDefault(NewLogger(handler))
}

// WithContext returns a logger carrying the given key/value context. Unlike
// New, the returned logger follows the root logger, so packages may build
// their loggers in var blocks before InitLogger has run.
func WithContext(ctx ...any) Logger {
	return &ctxLogger{ctx: ctx}
}

type ctxLogger struct {
	ctx []any
}

func (l *ctxLogger) resolve() Logger {
	return Root().With(l.ctx...)
}

func (l *ctxLogger) With(ctx ...any) Logger {
	merged := make([]any, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &ctxLogger{ctx: merged}
}

func (l *ctxLogger) New(ctx ...any) Logger {
	return l.With(ctx...)
}

func (l *ctxLogger) Log(level slog.Level, msg string, ctx ...any) {
	l.resolve().Write(level, msg, ctx...)
}

func (l *ctxLogger) Trace(msg string, ctx ...any) {
	l.resolve().Write(LevelTrace, msg, ctx...)
}

func (l *ctxLogger) Debug(msg string, ctx ...any) {
	l.resolve().Write(slog.LevelDebug, msg, ctx...)
}

func (l *ctxLogger) Info(msg string, ctx ...any) {
	l.resolve().Write(slog.LevelInfo, msg, ctx...)
}

func (l *ctxLogger) Warn(msg string, ctx ...any) {
	l.resolve().Write(slog.LevelWarn, msg, ctx...)
}

func (l *ctxLogger) Error(msg string, ctx ...any) {
	l.resolve().Write(slog.LevelError, msg, ctx...)
}

func (l *ctxLogger) Crit(msg string, ctx ...any) {
	l.resolve().Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

func (l *ctxLogger) Write(level slog.Level, msg string, attrs ...any) {
	l.resolve().Write(level, msg, attrs...)
}

func (l *ctxLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return Root().Enabled(ctx, level)
}

func (l *ctxLogger) Handler() slog.Handler {
	return Root().Handler()
}
