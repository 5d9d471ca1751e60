package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// JSONLogEntry is a single structured log line.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Trace     string                 `json:"trace,omitempty"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// String renders the entry as a single JSON line.
func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = "INFO"
	}
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"severity":"ERROR","message":"json.Marshal: %s"}`, err)
	}
	return string(out)
}

type jsonLogger struct {
	out       io.Writer
	mu        *sync.Mutex
	metadata  map[string]interface{}
	traceID   string
	component string
	logLevel  LogLevel
	now       func() time.Time
}

var _ Logger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	return &jsonLogger{
		out:       c.out,
		mu:        c.mu,
		metadata:  cloneMetadata(c.metadata),
		traceID:   c.traceID,
		component: c.component,
		logLevel:  c.logLevel,
		now:       c.now,
	}
}

// WithContext picks up the active trace id, if any, so log lines can be
// correlated with store spans.
func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		clone.traceID = sc.TraceID().String()
	}
	return clone
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	switch {
	case clone.component == "":
		clone.component = prefix
	case !strings.Contains(clone.component, prefix):
		clone.component = clone.component + " " + prefix
	}
	return clone
}

func (c *jsonLogger) With(newFields map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range newFields {
		clone.metadata[k] = v
	}
	if comp, ok := clone.metadata["component"].(string); ok {
		clone.component = comp
		delete(clone.metadata, "component")
	}
	return clone
}

func (c *jsonLogger) log(level LogLevel, severity string, msg string, args ...interface{}) {
	if level < c.logLevel {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	entry := JSONLogEntry{
		Timestamp: c.now(),
		Message:   ansiColorStripper.ReplaceAllString(msg, ""),
		Severity:  severity,
		Trace:     c.traceID,
		Component: strings.Trim(c.component, "[]"),
	}
	if len(c.metadata) > 0 {
		entry.Metadata = c.metadata
	}
	c.mu.Lock()
	fmt.Fprintln(c.out, entry.String())
	c.mu.Unlock()
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) {
	c.log(LevelTrace, "TRACE", msg, args...)
}

func (c *jsonLogger) Debug(msg string, args ...interface{}) {
	c.log(LevelDebug, "DEBUG", msg, args...)
}

func (c *jsonLogger) Info(msg string, args ...interface{}) {
	c.log(LevelInfo, "INFO", msg, args...)
}

func (c *jsonLogger) Warn(msg string, args ...interface{}) {
	c.log(LevelWarn, "WARNING", msg, args...)
}

func (c *jsonLogger) Error(msg string, args ...interface{}) {
	c.log(LevelError, "ERROR", msg, args...)
}

func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, "FATAL", msg, args...)
	os.Exit(1)
}

// NewJSONLogger returns a new Logger writing one JSON object per line to stdout.
func NewJSONLogger(levels ...LogLevel) Logger {
	return NewJSONLoggerWithWriter(os.Stdout, levels...)
}

// NewJSONLoggerWithWriter is NewJSONLogger with an explicit destination.
func NewJSONLoggerWithWriter(w io.Writer, levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{
		out:      w,
		mu:       &sync.Mutex{},
		metadata: map[string]interface{}{},
		logLevel: level,
		now:      time.Now,
	}
}
