package seclog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"tasktracker/internal/pkg/metrics"
)

// Logger is the process-wide security event log. Events are appended to a
// file and mirrored to slog. Writes are best-effort: a failed write never
// affects request handling. All methods are no-ops on a nil Logger.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	slog   *slog.Logger
	warned bool
}

// New opens (or creates) the event log file at path. An empty path keeps
// the logger console-only.
func New(path string, log *slog.Logger) (*Logger, error) {
	l := &Logger{slog: log}
	if path == "" {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open security event log: %w", err)
	}
	l.file = f
	return l, nil
}

// Event records one security event.
func (l *Logger) Event(description string) {
	if l == nil {
		return
	}
	if l.slog != nil {
		l.slog.Warn("[SECURITY EVENT] " + description)
	}
	if metrics.SecurityEventsTotal != nil {
		metrics.SecurityEventsTotal.Inc()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	line := fmt.Sprintf("%s - WARNING - [SECURITY EVENT] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), description)
	if _, err := l.file.WriteString(line); err != nil && !l.warned {
		l.warned = true
		if l.slog != nil {
			l.slog.Warn("security event log write failed", slog.String("error", err.Error()))
		}
	}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
