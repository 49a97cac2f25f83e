package mcpipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Logger receives the client's diagnostic messages.
// Implementations must be safe for concurrent use.
type Logger interface {
	Logf(format string, args ...any)
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Logf(string, ...any) {}

// SlogLogger adapts a *slog.Logger. Messages are emitted at Level.
type SlogLogger struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewSlogLogger returns a Logger writing to l at debug level.
// A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{Logger: l, Level: slog.LevelDebug}
}

func (l *SlogLogger) Logf(format string, args ...any) {
	ctx := context.Background()
	if !l.Logger.Enabled(ctx, l.Level) {
		return
	}
	l.Logger.Log(ctx, l.Level, fmt.Sprintf(format, args...))
}

// WriterLogger writes one line per message to an io.Writer.
type WriterLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{w: w}
}

func (l *WriterLogger) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}
