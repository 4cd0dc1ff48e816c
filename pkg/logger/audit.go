package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// auditTimeLayout matches the month/day/year stamps of the existing openai.log files.
const auditTimeLayout = "01/02/2006 15:04:05"

type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger builds a Logger writing timestamped console lines to w.
// Entries below minLevel are dropped.
func NewZapLogger(w io.Writer, minLevel zapcore.Level) Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(auditTimeLayout),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), minLevel)
	return zapLogger{z: zap.New(core)}
}

// NewFileLogger opens path for appending and returns an info-level audit
// logger plus a func that flushes and closes the file.
func NewFileLogger(path string) (Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewZapLogger(f, zapcore.InfoLevel).(zapLogger)
	closeFn := func() error {
		_ = l.z.Sync()
		return f.Close()
	}
	return l, closeFn, nil
}

func fields(obj any) []zap.Field {
	if obj == nil {
		return nil
	}
	if m, ok := obj.(map[string]any); ok {
		out := make([]zap.Field, 0, len(m))
		for k, v := range m {
			out = append(out, zap.Any(k, v))
		}
		return out
	}
	return []zap.Field{zap.Any("obj", obj)}
}

func (l zapLogger) Info(msg string, obj any)  { l.z.Info(msg, fields(obj)...) }
func (l zapLogger) Warn(msg string, obj any)  { l.z.Warn(msg, fields(obj)...) }
func (l zapLogger) Debug(msg string, obj any) { l.z.Debug(msg, fields(obj)...) }
func (l zapLogger) Error(msg string, obj any) { l.z.Error(msg, fields(obj)...) }
