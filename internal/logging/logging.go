// Package logging builds the zap loggers used by every task command.
//
// A run writes to up to three sinks at once: the console, a per-run log
// file that is overwritten at the start of the run and attached to the
// status report, and a long-lived tool log rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string

	// Console receives human-readable output. Nil disables it.
	Console io.Writer

	// RunLog is truncated and written for this run only.
	RunLog string

	// ToolLog is appended across runs and rotated.
	ToolLog    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is a zap logger plus the files it holds open.
type Logger struct {
	*zap.Logger
	closers []io.Closer
}

// Close flushes and closes every file sink.
func (l *Logger) Close() error {
	_ = l.Sync()
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// ParseLevel maps a config level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// fileEncoderConfig renders lines as "[2006-01-02 15:04:05] INFO: message".
func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("[2006-01-02 15:04:05]"))
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(l.CapitalString() + ":")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := fileEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := ParseLevel(opts.Level)
	l := &Logger{}
	var cores []zapcore.Core

	if opts.Console != nil {
		enc := zapcore.NewConsoleEncoder(consoleEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(opts.Console), level))
	}

	if opts.RunLog != "" {
		if err := os.MkdirAll(filepath.Dir(opts.RunLog), 0755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.Create(opts.RunLog) //nolint:gosec // G304: log path built from config
		if err != nil {
			return nil, fmt.Errorf("opening run log: %w", err)
		}
		l.closers = append(l.closers, f)
		enc := zapcore.NewConsoleEncoder(fileEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel))
	}

	if opts.ToolLog != "" {
		w := &lumberjack.Logger{
			Filename:   opts.ToolLog,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		l.closers = append(l.closers, w)
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), level))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}
	l.Logger = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// RunLogName returns the per-run log file name for a run started at start
// on server, such as 20240309_220000_arctic.log or, with a suffix,
// 20240309_220000_arctic_Versions.log.
func RunLogName(start time.Time, server, suffix string) string {
	name := start.Format("20060102_150405") + "_" + server
	if suffix != "" {
		name += "_" + suffix
	}
	return name + ".log"
}
