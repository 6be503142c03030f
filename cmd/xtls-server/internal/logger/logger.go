package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"k8s.io/klog/v2"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init initializes the global logger on stdout. debug enables debug level logging.
func Init(debug bool) {
	once.Do(func() {
		install(os.Stdout, Level(debug))
	})
}

// Level maps the debug flag onto a slog level.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// SetOutput replaces the global logger with one writing to w at the given level.
// Tests use it to capture log lines.
func SetOutput(w io.Writer, level slog.Level) {
	once.Do(func() {})
	install(w, level)
}

func install(w io.Writer, level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source file information if in debug mode
		AddSource: level == slog.LevelDebug,
	}

	defaultLogger = slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(defaultLogger)

	// client-go logs through klog; keep a single output format.
	klog.SetSlogLogger(defaultLogger.With("component", "client-go"))
}

func get() *slog.Logger {
	if defaultLogger == nil {
		Init(false)
	}
	return defaultLogger
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	get().Error(msg, args...)
	os.Exit(1)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// DebugContext logs at Debug level with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	get().DebugContext(ctx, msg, args...)
}

// InfoContext logs at Info level with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	get().InfoContext(ctx, msg, args...)
}

// WarnContext logs at Warn level with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	get().WarnContext(ctx, msg, args...)
}

// ErrorContext logs at Error level with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	get().ErrorContext(ctx, msg, args...)
}
