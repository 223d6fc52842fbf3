package logging

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// DefaultLogger is a structured logger backed by logrus.
// All levels are written to stderr so command output on stdout stays
// machine readable. Colors are used only when the writer is a terminal.
type DefaultLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefaultLogger creates a logger writing to stderr
func NewDefaultLogger() *DefaultLogger {
	return NewDefaultLoggerWithWriter(os.Stderr)
}

// NewDefaultLoggerNoColor creates a logger writing to stderr without colors
func NewDefaultLoggerNoColor() *DefaultLogger {
	l := NewDefaultLoggerWithWriter(os.Stderr)
	l.SetColors(false)
	return l
}

// NewDefaultLoggerWithWriter creates a logger writing to w
func NewDefaultLoggerWithWriter(w io.Writer) *DefaultLogger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   isTerminal(w),
		DisableColors: !isTerminal(w),
	})

	return &DefaultLogger{
		base:  base,
		entry: logrus.NewEntry(base),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColors toggles colored level names
func (d *DefaultLogger) SetColors(enabled bool) {
	d.base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   enabled,
		DisableColors: !enabled,
	})
}

func (d *DefaultLogger) with(err error, fields []Fields) *logrus.Entry {
	entry := d.entry
	if merged := mergeFields(fields); len(merged) > 0 {
		entry = entry.WithFields(logrus.Fields(merged))
	}
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.with(nil, fields).Debug(msg)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.with(nil, fields).Info(msg)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.with(nil, fields).Warn(msg)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.with(err, fields).Error(msg)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.with(err, fields).Fatal(msg)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	return &DefaultLogger{
		base:  d.base,
		entry: d.entry.WithFields(logrus.Fields(fields)),
	}
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return d.WithFields(fields)
	}
	return d
}

// SetLevel changes the level of this logger and every logger derived from it
func (d *DefaultLogger) SetLevel(level Level) {
	d.base.SetLevel(toLogrusLevel(level))
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// NoOpLogger discards everything. Tests install it to keep output clean.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
