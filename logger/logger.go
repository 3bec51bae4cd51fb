// SPDX-License-Identifier: GPL-3.0

// Package logger wraps zap with a console encoder suited to experiment logs,
// and optional rotating file output.
package logger

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

type Field = zap.Field

var (
	String   = zap.String
	Int      = zap.Int
	Bool     = zap.Bool
	Float64  = zap.Float64
	Error    = zap.Error
	Duration = zap.Duration
)

// Logger is a leveled logger for the harness and sweep driver.
type Logger struct {
	l  *zap.Logger
	al *zap.AtomicLevel
}

// New returns a Logger writing to out at the given level.
func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	al := zap.NewAtomicLevelAt(level)
	core := zapcore.NewCore(encoder(), zapcore.AddSync(out), al)
	return &Logger{zap.New(core), &al}
}

// NewFile returns a Logger that also writes to a rotating log file.
func NewFile(path string, level Level) *Logger {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
	}
	al := zap.NewAtomicLevelAt(level)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder(), zapcore.AddSync(os.Stderr), al),
		zapcore.NewCore(encoder(), zapcore.AddSync(rot), al),
	)
	return &Logger{zap.New(core), &al}
}

// encoder returns the console encoder used for all outputs.
func encoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     encodeTime,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	})
}

func encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}

func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	if l.al != nil {
		l.al.SetLevel(level)
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() error { return l.l.Sync() }

var std = New(os.Stderr, InfoLevel)

// Default returns the process-wide logger.
func Default() *Logger { return std }

// ReplaceDefault replaces the process-wide logger.
func ReplaceDefault(l *Logger) { std = l }
