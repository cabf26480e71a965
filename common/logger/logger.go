// Package logger is the structured logger shared by every marketplace
// component. Text output goes through tint; LOG_FORMAT=json switches to
// slog's JSON handler for log shippers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/healthchain/marketplace/common/clients"
	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with marketplace-specific context helpers
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout
func New(level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lvl := parseLevel(level)

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return NewWithWriter(io.Discard, "error", "json")
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the inbound request id, when ctx carries one
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := clients.GetRequestID(ctx); ok {
		return l.with("request_id", id)
	}
	return l
}

// WithDatasetID tags records with a ledger dataset id
func (l *Logger) WithDatasetID(id uint64) *Logger { return l.with("dataset_id", id) }

// WithUploadID tags records with an upload job id
func (l *Logger) WithUploadID(id string) *Logger { return l.with("upload_id", id) }

// WithComponent tags records with the emitting component
func (l *Logger) WithComponent(name string) *Logger { return l.with("component", name) }

// Error logs at error level with the caller's stack attached
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append(args, "stack", string(debug.Stack()))...)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
