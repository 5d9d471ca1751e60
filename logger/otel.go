package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/log"
)

// otelLogger implements the Logger interface for OpenTelemetry
type otelLogger struct {
	ctx        context.Context
	prefixes   []string
	metadata   map[string]log.Value
	logLevel   LogLevel
	otelLogger log.Logger
}

var _ Logger = (*otelLogger)(nil)

func (o *otelLogger) clone() *otelLogger {
	metadata := make(map[string]log.Value, len(o.metadata))
	for k, v := range o.metadata {
		metadata[k] = v
	}
	return &otelLogger{
		ctx:        o.ctx,
		prefixes:   append([]string(nil), o.prefixes...),
		metadata:   metadata,
		logLevel:   o.logLevel,
		otelLogger: o.otelLogger,
	}
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (o *otelLogger) WithPrefix(prefix string) Logger {
	clone := o.clone()
	clone.prefixes = append(clone.prefixes, prefix)
	return clone
}

// WithContext ties emitted records to the span active in ctx.
func (o *otelLogger) WithContext(ctx context.Context) Logger {
	clone := o.clone()
	clone.ctx = ctx
	return clone
}

func toLogValue(unknown interface{}) log.Value {
	switch v := unknown.(type) {
	case string:
		return log.StringValue(v)
	case int:
		return log.IntValue(v)
	case int64:
		return log.Int64Value(v)
	case bool:
		return log.BoolValue(v)
	case float64:
		return log.Float64Value(v)
	case []byte:
		return log.BytesValue(v)
	case time.Duration:
		return log.StringValue(v.String())
	case []interface{}:
		var values []log.Value
		for _, arrayItem := range v {
			values = append(values, toLogValue(arrayItem))
		}
		return log.SliceValue(values...)
	case map[string]interface{}:
		var values []log.KeyValue
		for mapKey, mapUnknownValue := range v {
			values = append(values, log.KeyValue{Key: mapKey, Value: toLogValue(mapUnknownValue)})
		}
		return log.MapValue(values...)
	default:
		return log.StringValue(fmt.Sprintf("%v", v))
	}
}

// With will return a new logger using metadata as the base context
func (o *otelLogger) With(metadata map[string]interface{}) Logger {
	clone := o.clone()
	for k, v := range metadata {
		clone.metadata[k] = toLogValue(v)
	}
	return clone
}

func (o *otelLogger) log(level LogLevel, severity log.Severity, msg string, args ...interface{}) {
	if level < o.logLevel {
		return
	}

	formattedMsg := fmt.Sprintf(msg, args...)
	if len(o.prefixes) > 0 {
		formattedMsg = strings.Join(o.prefixes, " ") + " " + formattedMsg
	}

	now := time.Now()
	record := log.Record{}
	record.SetBody(log.StringValue(formattedMsg))
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetObservedTimestamp(now)
	record.SetTimestamp(now)
	for k, v := range o.metadata {
		record.AddAttributes(log.KeyValue{Key: k, Value: v})
	}

	o.otelLogger.Emit(o.ctx, record)
}

// Trace level logging
func (o *otelLogger) Trace(msg string, args ...interface{}) {
	o.log(LevelTrace, log.SeverityTrace, msg, args...)
}

// Debug level logging
func (o *otelLogger) Debug(msg string, args ...interface{}) {
	o.log(LevelDebug, log.SeverityDebug, msg, args...)
}

// Info level logging
func (o *otelLogger) Info(msg string, args ...interface{}) {
	o.log(LevelInfo, log.SeverityInfo, msg, args...)
}

// Warning level logging
func (o *otelLogger) Warn(msg string, args ...interface{}) {
	o.log(LevelWarn, log.SeverityWarn, msg, args...)
}

// Error level logging
func (o *otelLogger) Error(msg string, args ...interface{}) {
	o.log(LevelError, log.SeverityError, msg, args...)
}

// Fatal level logging and exit with code 1
func (o *otelLogger) Fatal(msg string, args ...interface{}) {
	o.log(LevelError, log.SeverityFatal, msg, args...)
	os.Exit(1)
}

// NewOtelLogger returns a Logger that emits records to an OpenTelemetry
// log pipeline.
func NewOtelLogger(otelsLogger log.Logger, level LogLevel) Logger {
	return &otelLogger{
		ctx:        context.Background(),
		metadata:   map[string]log.Value{},
		logLevel:   level,
		otelLogger: otelsLogger,
	}
}
