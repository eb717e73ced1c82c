// Package logging wraps log/slog with a process-wide logger writing text to
// stdout and JSON to weekly rotating files.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

type LoggingService struct {
	Logger  *slog.Logger
	rotator *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	mu                    sync.Mutex
)

// InitLogger initializes the global logger at info level with 4 weeks of
// retention. An empty logDir logs to stdout only.
func InitLogger(logDir string) {
	InitLoggerWithRetention(logDir, 4, defaultMaxFileSize, "info")
}

// InitLoggerWithRetention initializes the global logger. When the log
// directory cannot be used, logging continues on stdout.
func InitLoggerWithRetention(logDir string, retentionWeeks int, maxFileSize int64, level string) {
	svc := newLoggingService(os.Stdout, logDir, retentionWeeks, maxFileSize, parseLogLevel(level))

	mu.Lock()
	prev := DefaultLoggingService
	DefaultLoggingService = svc
	mu.Unlock()

	slog.SetDefault(svc.Logger)
	if prev != nil && prev.rotator != nil {
		_ = prev.rotator.Close()
	}
}

func newLoggingService(console io.Writer, logDir string, retentionWeeks int, maxFileSize int64, level slog.Level) *LoggingService {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	if logDir == "" {
		return &LoggingService{Logger: slog.New(consoleHandler)}
	}

	rotator := NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, maxFileSize)
	if err := rotator.open(); err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("Failed to initialize rotating logger, logging to console only", "error", err)
		return &LoggingService{Logger: logger}
	}
	rotator.startCleanup(24 * time.Hour)

	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return &LoggingService{
		Logger:  slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}}),
		rotator: rotator,
	}
}

// Close flushes and closes the log file of the global logger
func Close() error {
	mu.Lock()
	svc := DefaultLoggingService
	mu.Unlock()
	if svc == nil || svc.rotator == nil {
		return nil
	}
	return svc.rotator.Close()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return nil
	}
	return DefaultLoggingService.Logger
}

// fallback is used before InitLogger is called
func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Info(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Info(msg, args...)
		return
	}
	fallback(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Error(msg, args...)
		return
	}
	fallback(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Warn(msg, args...)
		return
	}
	fallback(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	if l := logger(); l != nil {
		l.Debug(msg, args...)
		return
	}
	fallback(slog.LevelDebug).Debug(msg, args...)
}
