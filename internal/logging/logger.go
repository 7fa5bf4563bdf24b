// Package logging builds the application logger. The TUI owns stdout, so
// records go to a file plus a small in-memory tail the UI can show.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const tailSize = 50

// Logger bundles the zerolog logger with the file it writes to and the
// recent-lines tail.
type Logger struct {
	zerolog.Logger
	file *os.File
	tail *Tail
}

// New opens (or creates) the log file at path. An empty path keeps only the
// in-memory tail.
func New(path, level string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	tail := NewTail(tailSize)
	console := zerolog.ConsoleWriter{Out: tail, NoColor: true, TimeFormat: "15:04:05"}
	writers := []io.Writer{console}

	var f *os.File
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		writers = append(writers, f)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: zl, file: f, tail: tail}, nil
}

// Tail returns the recent-lines buffer.
func (l *Logger) Tail() *Tail {
	return l.tail
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Tail keeps the last few formatted log lines.
type Tail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func NewTail(limit int) *Tail {
	if limit < 1 {
		limit = 1
	}
	return &Tail{limit: limit}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.lines = append(t.lines, line)
	}
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
	return len(p), nil
}

// Lines returns a copy, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

