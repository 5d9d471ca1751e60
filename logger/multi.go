package logger

import (
	"context"
	"fmt"
	"os"
)

// multiLogger fans every call out to several loggers.
type multiLogger []Logger

var _ Logger = multiLogger(nil)

// NewMultiLogger returns a Logger that writes to every logger in loggers,
// e.g. the console and an OpenTelemetry exporter.
func NewMultiLogger(loggers ...Logger) Logger {
	if len(loggers) == 1 {
		return loggers[0]
	}
	return multiLogger(loggers)
}

func (m multiLogger) each(fn func(Logger) Logger) Logger {
	out := make(multiLogger, len(m))
	for i, l := range m {
		out[i] = fn(l)
	}
	return out
}

func (m multiLogger) With(metadata map[string]interface{}) Logger {
	return m.each(func(l Logger) Logger { return l.With(metadata) })
}

func (m multiLogger) WithPrefix(prefix string) Logger {
	return m.each(func(l Logger) Logger { return l.WithPrefix(prefix) })
}

func (m multiLogger) WithContext(ctx context.Context) Logger {
	return m.each(func(l Logger) Logger { return l.WithContext(ctx) })
}

func (m multiLogger) Trace(msg string, args ...interface{}) {
	for _, l := range m {
		l.Trace(msg, args...)
	}
}

func (m multiLogger) Debug(msg string, args ...interface{}) {
	for _, l := range m {
		l.Debug(msg, args...)
	}
}

func (m multiLogger) Info(msg string, args ...interface{}) {
	for _, l := range m {
		l.Info(msg, args...)
	}
}

func (m multiLogger) Warn(msg string, args ...interface{}) {
	for _, l := range m {
		l.Warn(msg, args...)
	}
}

func (m multiLogger) Error(msg string, args ...interface{}) {
	for _, l := range m {
		l.Error(msg, args...)
	}
}

// Fatal logs to every logger at error level before exiting, so a Fatal on
// the first logger cannot cut off the others.
func (m multiLogger) Fatal(msg string, args ...interface{}) {
	for _, l := range m {
		l.Error(msg, args...)
	}
	fmt.Fprintf(os.Stderr, "fatal: "+msg+"\n", args...)
	os.Exit(1)
}
