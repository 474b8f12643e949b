// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package log provides the process-wide structured logger.
// Packages hold their own contextual logger:
//
//	var logger = log.WithContext("pkg", "replica")
package log

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
)

// Level aliases slog.Level.
type Level = slog.Level

// Aliases of the levels in use.
const (
	LevelTrace Level = -8
	LevelDebug       = slog.LevelDebug
	LevelInfo        = slog.LevelInfo
	LevelWarn        = slog.LevelWarn
	LevelError       = slog.LevelError
)

// Logger writes key-value pairs at various levels.
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given ones.
	With(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)

	// Handler returns the underlying handler.
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a Logger backed by the given handler.
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) Handler() slog.Handler {
	return l.inner.Handler()
}

func (l *logger) With(ctx ...any) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) write(level slog.Level, msg string, attrs ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	l.inner.Log(context.Background(), level, msg, attrs...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LevelError, msg, ctx...) }

var root atomic.Value

func init() {
	root.Store(&logger{slog.New(DiscardHandler())})
}

// SetDefault sets the default global logger.
func SetDefault(l Logger) {
	root.Store(l.(*logger))
	slog.SetDefault(l.(*logger).inner)
}

// Root returns the root logger.
func Root() Logger {
	return root.Load().(*logger)
}

// WithContext returns a Logger deriving the root logger with the
// given contextual attributes. The root handler may be swapped later;
// derived loggers pick it up lazily at each call.
func WithContext(ctx ...any) Logger {
	return &lazyLogger{ctx: ctx}
}

type lazyLogger struct {
	ctx []any
}

func (l *lazyLogger) resolve() Logger {
	return Root().With(l.ctx...)
}

func (l *lazyLogger) Handler() slog.Handler          { return l.resolve().Handler() }
func (l *lazyLogger) With(ctx ...any) Logger         { return l.resolve().With(ctx...) }
func (l *lazyLogger) Trace(msg string, ctx ...any)   { l.resolve().Trace(msg, ctx...) }
func (l *lazyLogger) Debug(msg string, ctx ...any)   { l.resolve().Debug(msg, ctx...) }
func (l *lazyLogger) Info(msg string, ctx ...any)    { l.resolve().Info(msg, ctx...) }
func (l *lazyLogger) Warn(msg string, ctx ...any)    { l.resolve().Warn(msg, ctx...) }
func (l *lazyLogger) Error(msg string, ctx ...any)   { l.resolve().Error(msg, ctx...) }

// FromLegacyLevel maps geth-style int verbosity to slog levels.
func FromLegacyLevel(lvl int) Level {
	switch lvl {
	case 0:
		return math.MaxInt // disable logging
	case 1:
		return LevelError
	case 2:
		return LevelWarn
	case 3:
		return LevelInfo
	case 4:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// NewTerminalLogger creates a logger printing human readable records to stderr
// at the given level.
func NewTerminalLogger(lvl Level) Logger {
	var lv slog.LevelVar
	lv.Set(lvl)
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &lv}))
}

// NewJSONLogger creates a logger emitting JSON records to stderr at the given level.
func NewJSONLogger(lvl Level) Logger {
	var lv slog.LevelVar
	lv.Set(lvl)
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: &lv}))
}

type discardHandler struct{}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }

func (h *discardHandler) Enabled(_ context.Context, _ slog.Level) bool { return false }

func (h *discardHandler) WithGroup(_ string) slog.Handler { return &discardHandler{} }

func (h *discardHandler) WithAttrs(_ []slog.Attr) slog.Handler { return &discardHandler{} }
