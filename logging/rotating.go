package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	filePrefix         = "cds-"
	defaultMaxFileSize = 100 * 1024 * 1024
)

var numberedFileRegex = regexp.MustCompile(`^cds-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger writes to one file per ISO week (cds-YYYY-Www.log). A file
// that reaches maxFileSize continues in cds-YYYY-Www_NN.log.
type RotatingLogger struct {
	logDir      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex

	cancel      context.CancelFunc
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewRotatingLogger creates a rotating logger with the default size limit
func NewRotatingLogger(logDir string, retentionWeeks int) *RotatingLogger {
	return NewRotatingLoggerWithSizeLimit(logDir, retentionWeeks, defaultMaxFileSize)
}

// NewRotatingLoggerWithSizeLimit creates a rotating logger. A maxFileSize of 0
// disables size rotation.
func NewRotatingLoggerWithSizeLimit(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
	}
}

// getWeekKey returns the ISO week in YYYY-Www format
func getWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// open creates the log directory and the file for the current week
func (rl *RotatingLogger) open() error {
	if err := os.MkdirAll(rl.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.doRotate(getWeekKey(time.Now()), false)
}

// doRotate switches to the file for targetWeek (caller holds the lock)
func (rl *RotatingLogger) doRotate(targetWeek string, sizeExceeded bool) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			slog.Warn("Failed to close log file during rotation", "error", err)
		}
		rl.currentFile = nil
	}

	fileName := rl.pickFile(targetWeek, sizeExceeded)
	logPath := filepath.Join(rl.logDir, fileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	rl.currentFile = file
	rl.currentWeek = targetWeek
	rl.currentSize.Store(0)
	if info, err := file.Stat(); err == nil {
		rl.currentSize.Store(info.Size())
	}
	return nil
}

// pickFile returns the base file of the week, or the latest numbered file
// with room left, or a new numbered file.
func (rl *RotatingLogger) pickFile(week string, sizeExceeded bool) string {
	base := filePrefix + week + ".log"
	if !sizeExceeded {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil || rl.maxFileSize == 0 || info.Size() < rl.maxFileSize {
			return base
		}
	}

	highest, lastSize := 0, int64(0)
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, filePrefix+week+"_??.log"))
	for _, m := range matches {
		sub := numberedFileRegex.FindStringSubmatch(filepath.Base(m))
		if sub == nil {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		if n > highest {
			highest = n
			lastSize = 0
			if info, err := os.Stat(m); err == nil {
				lastSize = info.Size()
			}
		}
	}

	if highest > 0 && !sizeExceeded && lastSize < rl.maxFileSize {
		return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest)
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest+1)
}

// Write implements io.Writer
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := getWeekKey(time.Now())
	sizeExceeded := rl.maxFileSize > 0 && rl.currentFile != nil &&
		rl.currentSize.Load() > 0 && rl.currentSize.Load()+int64(len(p)) > rl.maxFileSize

	if rl.currentFile == nil || rl.currentWeek != week || sizeExceeded {
		if err := rl.doRotate(week, sizeExceeded && rl.currentWeek == week); err != nil {
			return 0, err
		}
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files older than the retention period
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(rl.logDir, name)) == nil {
			deleted++
		}
	}
	return deleted, nil
}

// startCleanup runs cleanupOldLogs once a day until Close
func (rl *RotatingLogger) startCleanup(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	rl.cancel = cancel
	rl.cleanupDone = make(chan struct{})

	go func() {
		defer close(rl.cleanupDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := rl.cleanupOldLogs(); err != nil {
					slog.Warn("Failed to cleanup old logs", "error", err)
				} else if n > 0 {
					slog.Info("Cleaned up old log files", "count", n)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and closes the current file
func (rl *RotatingLogger) Close() error {
	var err error
	rl.closeOnce.Do(func() {
		if rl.cancel != nil {
			rl.cancel()
			<-rl.cleanupDone
		}
		rl.mu.Lock()
		defer rl.mu.Unlock()
		if rl.currentFile != nil {
			err = rl.currentFile.Close()
			rl.currentFile = nil
		}
	})
	return err
}

// multiHandler fans a record out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}
