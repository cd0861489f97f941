// Package logging provides the structured logger used across credledger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is a logging verbosity.
type Level int

const (
	OffLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) String() string {
	switch l {
	case OffLevel:
		return "off"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name; unknown names map to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return OffLevel
	case "error":
		return ErrorLevel
	case "warn", "warning":
		return WarnLevel
	case "debug", "trace":
		return DebugLevel
	default:
		return InfoLevel
	}
}

// Logger is the logging contract.
type Logger interface {
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// Options configures New.
type Options struct {
	Level  Level
	Format string // "json" or "text"
	Output io.Writer
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a logrus-backed Logger.
func New(opts Options) Logger {
	l := logrus.New()
	switch opts.Level {
	case OffLevel:
		l.SetOutput(io.Discard)
		l.SetLevel(logrus.PanicLevel)
	case ErrorLevel:
		l.SetLevel(logrus.ErrorLevel)
	case WarnLevel:
		l.SetLevel(logrus.WarnLevel)
	case DebugLevel:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}
	if opts.Level != OffLevel {
		if opts.Output != nil {
			l.SetOutput(opts.Output)
		} else {
			l.SetOutput(os.Stderr)
		}
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// Nop discards everything.
func Nop() Logger { return New(Options{Level: OffLevel}) }

func (l *logrusLogger) Error(args ...interface{})            { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(t string, args ...interface{}) { l.entry.Errorf(t, args...) }
func (l *logrusLogger) Warn(args ...interface{})             { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(t string, args ...interface{})  { l.entry.Warnf(t, args...) }
func (l *logrusLogger) Info(args ...interface{})             { l.entry.Info(args...) }
func (l *logrusLogger) Infof(t string, args ...interface{})  { l.entry.Infof(t, args...) }
func (l *logrusLogger) Debug(args ...interface{})            { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(t string, args ...interface{}) { l.entry.Debugf(t, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
