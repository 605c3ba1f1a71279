package xlog

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewText(LevelInfo))
}

func Debug(msg string, fields ...slog.Attr) {
	Default().Debug(msg, fields...)
}

func Info(msg string, fields ...slog.Attr) {
	Default().Info(msg, fields...)
}

func Warn(msg string, fields ...slog.Attr) {
	Default().Warn(msg, fields...)
}
func Error(msg string, fields ...slog.Attr) {
	Default().Error(msg, fields...)
}

type Logger struct {
	json bool
	s    *slog.Logger
}

const (
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
)

var (
	Int      = slog.Int
	Any      = slog.Any
	Bool     = slog.Bool
	Int64    = slog.Int64
	Uint64   = slog.Uint64
	Str      = slog.String
	Duration = slog.Duration
)

func Err(e error) slog.Attr {
	return slog.Any("error", e)
}
func Url(u string) slog.Attr {
	return slog.String("url", u)
}
func Addr(a string) slog.Attr {
	return slog.String("address", a)
}
func Size(n int) slog.Attr {
	return slog.Int("size", n)
}
func With(args ...any) *Logger {
	return Default().With(args...)
}
func WithLevel(level slog.Level) *Logger {
	return Default().WithLevel(level)
}
func NewText(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{s: slog.New(handler), json: false}
}
func NewJSON(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{s: slog.New(handler), json: true}
}

func Default() *Logger {
	return defaultLogger.Load()
}
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}
func (l *Logger) WithLevel(level slog.Level) *Logger {
	if l.json {
		return NewJSON(level)
	}
	return NewText(level)
}
func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelWarn, msg, fields...)
}
func (l *Logger) Error(msg string, fields ...slog.Attr) {
	l.s.LogAttrs(context.Background(), slog.LevelError, msg, fields...)
}
