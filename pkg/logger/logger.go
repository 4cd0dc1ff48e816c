// Package logger provides the small logging interface used across the client,
// a plain writer logger for diagnostics and a zap-backed audit log.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger is the logging interface used by every package in the module.
// obj carries structured context, usually a map[string]any.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

// writerLogger prints one line per entry: time, level, message, then the
// fields of obj as key=value pairs in key order.
type writerLogger struct {
	mu  *sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriterLogger builds a logger that writes diagnostics to w.
func NewWriterLogger(w io.Writer) Logger {
	return writerLogger{mu: &sync.Mutex{}, w: w, now: time.Now}
}

func (l writerLogger) Info(msg string, obj any)  { l.write("INFO", msg, obj) }
func (l writerLogger) Warn(msg string, obj any)  { l.write("WARN", msg, obj) }
func (l writerLogger) Debug(msg string, obj any) { l.write("DEBUG", msg, obj) }
func (l writerLogger) Error(msg string, obj any) { l.write("ERROR", msg, obj) }

func (l writerLogger) write(level, msg string, obj any) {
	if l.w == nil {
		return
	}
	var b strings.Builder
	b.WriteString(l.now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&b, " %-5s %s", level, msg)
	appendFields(&b, obj)
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, b.String())
}

func appendFields(b *strings.Builder, obj any) {
	switch v := obj.(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(b, " %s=%s", k, formatValue(v[k]))
		}
	default:
		_, _ = fmt.Fprintf(b, " obj=%s", formatValue(v))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		if strings.ContainsAny(x, " \t\n\"=") || x == "" {
			return fmt.Sprintf("%q", x)
		}
		return x
	case error:
		return fmt.Sprintf("%q", x.Error())
	case fmt.Stringer:
		return x.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%+v", v))
	}
	return string(raw)
}

type teeLogger []Logger

// Tee fans every entry out to all non-nil loggers.
func Tee(loggers ...Logger) Logger {
	out := make(teeLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (t teeLogger) Info(msg string, obj any) {
	for _, l := range t {
		l.Info(msg, obj)
	}
}

func (t teeLogger) Warn(msg string, obj any) {
	for _, l := range t {
		l.Warn(msg, obj)
	}
}

func (t teeLogger) Debug(msg string, obj any) {
	for _, l := range t {
		l.Debug(msg, obj)
	}
}

func (t teeLogger) Error(msg string, obj any) {
	for _, l := range t {
		l.Error(msg, obj)
	}
}

// Debug logs only when verbose output is enabled.
func Debug(enabled bool, logger Logger, msg string, obj any) {
	if enabled && logger != nil {
		logger.Debug(msg, obj)
	}
}

// Warn is a nil-safe logger.Warn.
func Warn(logger Logger, msg string, obj any) {
	if logger != nil {
		logger.Warn(msg, obj)
	}
}

// Error is a nil-safe logger.Error.
func Error(logger Logger, msg string, obj any) {
	if logger != nil {
		logger.Error(msg, obj)
	}
}
