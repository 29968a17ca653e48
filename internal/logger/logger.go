// Package logger is a thin structured-logging layer over logrus.
//
// Components take a Logger and attach their own context with AddContext:
//
//	l := logger.AddContext(logger.Log, logger.Ctx{"pool": "vg0/pool00"})
//	l.Debug("Logical volume removed", logger.Ctx{"name": name})
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Ctx is the logging context.
type Ctx logrus.Fields

// Logger is the logging interface used across strata.
type Logger interface {
	Debug(msg string, ctx ...Ctx)
	Info(msg string, ctx ...Ctx)
	Warn(msg string, ctx ...Ctx)
	Error(msg string, ctx ...Ctx)
	AddContext(ctx Ctx) Logger
}

// Log is the process-wide logger. It discards everything until InitLogger runs.
var Log Logger = Discard()

type target interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

type logWrapper struct {
	target target
}

func (lw *logWrapper) entry(ctx ...Ctx) *logrus.Entry {
	fields := logrus.Fields{}
	for _, c := range ctx {
		for k, v := range c {
			fields[k] = v
		}
	}
	return lw.target.WithFields(fields)
}

func (lw *logWrapper) Debug(msg string, ctx ...Ctx) { lw.entry(ctx...).Debug(msg) }
func (lw *logWrapper) Info(msg string, ctx ...Ctx)  { lw.entry(ctx...).Info(msg) }
func (lw *logWrapper) Warn(msg string, ctx ...Ctx)  { lw.entry(ctx...).Warn(msg) }
func (lw *logWrapper) Error(msg string, ctx ...Ctx) { lw.entry(ctx...).Error(msg) }

func (lw *logWrapper) AddContext(ctx Ctx) Logger {
	return &logWrapper{target: lw.entry(ctx)}
}

// New wraps a logrus logger.
func New(l *logrus.Logger) Logger {
	return &logWrapper{target: l}
}

// Discard returns a logger that drops every message.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

// AddContext returns l with ctx attached, tolerating a nil l.
func AddContext(l Logger, ctx Ctx) Logger {
	if l == nil {
		l = Log
	}
	return l.AddContext(ctx)
}

// InitLogger configures Log. Warnings and errors are always written to
// stderr; verbose adds info and debug adds debug. When path is set the same
// stream is appended to that file.
func InitLogger(path string, verbose bool, debug bool) error {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	switch {
	case debug:
		l.SetLevel(logrus.DebugLevel)
	case verbose:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.WarnLevel)
	}

	writers := []io.Writer{os.Stderr}
	if path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}
	l.SetOutput(io.MultiWriter(writers...))

	Log = New(l)
	return nil
}

// ParseLevel maps a level name to the verbose/debug switches of InitLogger.
func ParseLevel(level string) (verbose bool, debug bool, err error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return false, false, err
	}
	return lvl >= logrus.InfoLevel, lvl >= logrus.DebugLevel, nil
}
