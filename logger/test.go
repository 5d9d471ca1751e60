package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
}

// TestLogger records every entry in memory so tests can assert on what a
// component logged. Loggers derived with With/WithPrefix share the record.
type TestLogger struct {
	metadata map[string]interface{}
	prefix   string
	mu       *sync.Mutex
	logs     *[]TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) derive() *TestLogger {
	return &TestLogger{metadata: cloneMetadata(c.metadata), prefix: c.prefix, mu: c.mu, logs: c.logs}
}

func (c *TestLogger) WithContext(ctx context.Context) Logger {
	return c
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	l := c.derive()
	l.prefix = strings.TrimSpace(l.prefix + " " + prefix)
	return l
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	l := c.derive()
	for k, v := range metadata {
		l.metadata[k] = v
	}
	return l
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	if c.prefix != "" {
		msg = c.prefix + " " + msg
	}
	c.mu.Lock()
	*c.logs = append(*c.logs, TestLogEntry{level, msg, args})
	c.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.Log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.Log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.Log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.Log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.Log("ERROR", msg, args...)
}

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log("FATAL", msg, args...)
	os.Exit(1)
}

// Logs returns a snapshot of the recorded entries.
func (c *TestLogger) Logs() []TestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestLogEntry, len(*c.logs))
	copy(out, *c.logs)
	return out
}

// Count returns how many entries were recorded at the given severity.
func (c *TestLogger) Count(severity string) int {
	var n int
	for _, e := range c.Logs() {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

// Contains reports whether any formatted entry contains substr.
func (c *TestLogger) Contains(substr string) bool {
	for _, e := range c.Logs() {
		msg := e.Message
		if len(e.Arguments) > 0 {
			msg = fmt.Sprintf(e.Message, e.Arguments...)
		}
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	logs := make([]TestLogEntry, 0)
	return &TestLogger{
		metadata: map[string]interface{}{},
		mu:       &sync.Mutex{},
		logs:     &logs,
	}
}
